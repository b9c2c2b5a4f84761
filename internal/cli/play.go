package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Corphon/DialogueEngine/internal/app"
	"github.com/Corphon/DialogueEngine/internal/services"
)

func init() {
	cmd := &cobra.Command{
		Use:   "play [conversation]",
		Short: "Play a conversation in the terminal",
		Long: "Runs a conversation against the configured database and save store.\n" +
			"Press enter to advance subtitles and type a number to pick a response.\n" +
			"Commands: save N, load N, quit.",
		Args: cobra.ExactArgs(1),
		Run:  runPlay,
	}
	cmd.Flags().String("actor", "", "Actor name (default: the conversation's actor)")
	cmd.Flags().String("conversant", "", "Conversant name (default: the conversation's conversant)")
	cmd.Flags().Int("load", -1, "Load this slot before starting")

	RootCmd.AddCommand(cmd)
}

func runPlay(cmd *cobra.Command, args []string) {
	actor, _ := cmd.Flags().GetString("actor")
	conversant, _ := cmd.Flags().GetString("conversant")
	loadSlot, _ := cmd.Flags().GetInt("load")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	a, err := app.New(cfg, newLogger())
	if err != nil {
		exitErr("init", err)
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if loadSlot >= 0 {
		if err := a.Saves.Load(ctx, loadSlot); err != nil {
			exitErr("load", err)
		}
	}

	req := services.StartRequest{Conversation: args[0], Actor: actor, Conversant: conversant}
	if err := Play(ctx, a, req, os.Stdin, cmd.OutOrStdout()); err != nil {
		exitErr("play", err)
	}
}

// Play runs one conversation, reading player input from in. It returns when
// the conversation ends or in is exhausted.
func Play(ctx context.Context, a *app.App, req services.StartRequest, in io.Reader, out io.Writer) error {
	events := a.Events.Subscribe("", 64)
	defer a.Events.Unsubscribe("", events)

	snap, err := a.Conversations.Start(req)
	if err != nil {
		return err
	}
	p := &player{ctx: ctx, app: a, in: bufio.NewScanner(in), out: out, events: events}
	return p.run(snap)
}

type player struct {
	ctx    context.Context
	app    *app.App
	in     *bufio.Scanner
	out    io.Writer
	events chan services.SessionEvent
}

func (p *player) run(snap *services.SessionSnapshot) error {
	id := snap.ID
	fmt.Fprintf(p.out, "== %s ==\n", snap.ConversationTitle)

	for {
		p.drainEvents()

		var err error
		switch snap.Phase {
		case services.PhaseClosed:
			fmt.Fprintln(p.out, "== end ==")
			return nil

		case services.PhaseSubtitle:
			if snap.Subtitle != nil && snap.Subtitle.Text != "" {
				fmt.Fprintf(p.out, "%s: %s\n", snap.Subtitle.Speaker.Name, snap.Subtitle.Text)
			}
			line, ok := p.readLine()
			if !ok {
				_, err = p.app.Conversations.Close(id)
				return err
			}
			if p.command(line) {
				snap, err = p.app.Conversations.Get(id)
				break
			}
			snap, err = p.app.Conversations.Continue(id)

		case services.PhaseResponses:
			for _, r := range snap.Responses {
				marker := ""
				if !r.Enabled {
					marker = " (unavailable)"
				}
				fmt.Fprintf(p.out, "  %d) %s%s\n", r.Index+1, r.Text, marker)
			}
			line, ok := p.readLine()
			if !ok {
				_, err = p.app.Conversations.Close(id)
				return err
			}
			if p.command(line) {
				snap, err = p.app.Conversations.Get(id)
				break
			}
			choice, convErr := strconv.Atoi(line)
			if convErr != nil {
				fmt.Fprintln(p.out, "pick a response number")
				continue
			}
			var next *services.SessionSnapshot
			next, err = p.app.Conversations.Choose(id, choice-1)
			if err != nil {
				fmt.Fprintln(p.out, err.Error())
				continue
			}
			snap = next

		default:
			snap, err = p.app.Conversations.Get(id)
		}
		if err != nil {
			return err
		}
	}
}

// readLine returns the next trimmed input line. quit and end of input
// report false.
func (p *player) readLine() (string, bool) {
	fmt.Fprint(p.out, "> ")
	if !p.in.Scan() {
		return "", false
	}
	line := strings.TrimSpace(p.in.Text())
	if line == "quit" || line == "q" {
		return "", false
	}
	return line, true
}

// command handles save and load. It reports whether line was a command.
func (p *player) command(line string) bool {
	fields := strings.Fields(line)
	if len(fields) != 2 || (fields[0] != "save" && fields[0] != "load") {
		return false
	}
	slot, err := parseSlot(fields[1])
	if err != nil {
		fmt.Fprintln(p.out, err.Error())
		return true
	}

	done := "saved"
	if fields[0] == "save" {
		err = p.app.Saves.Save(p.ctx, slot)
	} else {
		err = p.app.Saves.Load(p.ctx, slot)
		done = "loaded"
	}
	if err != nil {
		fmt.Fprintln(p.out, err.Error())
		return true
	}
	fmt.Fprintf(p.out, "[%s slot %d]\n", done, slot)
	return true
}

// drainEvents reports portrait changes raised since the last step.
func (p *player) drainEvents() {
	for {
		select {
		case event := <-p.events:
			if event.Type == services.EventPortrait {
				fmt.Fprintf(p.out, "[portrait changed]\n")
			}
		default:
			return
		}
	}
}
