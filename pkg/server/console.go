package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gomoderate/pkg/model"
)

// Console writes command replies for the operator.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Print writes one line.
func (c *Console) Print(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, text)
}

// consoleConn stands in for a player connection in the console host.
type consoleConn struct {
	name    string
	console *Console
}

func (c consoleConn) Send(message string) {
	c.console.Print(fmt.Sprintf("[-> %s] %s", c.name, message))
}

func (c consoleConn) Disconnect(message string) {
	c.console.Print(fmt.Sprintf("[%s disconnected] %s", c.name, message))
}

// OfflineID derives a stable player id from a name for hosts without an
// account service.
func OfflineID(name string) uuid.UUID {
	return uuid.NewMD5(uuid.NameSpaceOID, []byte("OfflinePlayer:"+strings.ToLower(name)))
}

const consoleHelp = `console commands:
  join <name> [ip]          connect a player
  leave <name>              disconnect a player
  chat <name> <message>     send chat as a player
  as <name> <command...>    run a command as a player
  gamemode <name> <mode>    switch a player's game mode
  who                       list online players
  reload                    re-read the config file
  metrics                   print counters
  help                      show this text
anything else runs as a moderation command from the console`

// ServeConsole reads operator lines from r until EOF or ctx ends. Besides
// moderation commands it can simulate players, which is how the standalone
// daemon is driven without a game server attached.
func (s *Server) ServeConsole(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := s.consoleLine(ctx, line); err != nil {
			s.console.Print("error: " + err.Error())
		}
	}
	return sc.Err()
}

func (s *Server) consoleLine(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "help", "?":
		s.console.Print(consoleHelp)
	case "who", "list":
		online := s.sessions.Online()
		names := make([]string, 0, len(online))
		for _, sess := range online {
			names = append(names, sess.Name)
		}
		s.console.Print(fmt.Sprintf("%d online: %s", len(names), strings.Join(names, ", ")))
	case "metrics":
		s.console.Print(s.metrics.JSON())
	case "reload":
		if err := s.Reload(); err != nil {
			return err
		}
		s.console.Print("Configuration reloaded.")
	case "join":
		if len(fields) < 2 {
			return fmt.Errorf("usage: join <name> [ip]")
		}
		ip := "127.0.0.1"
		if len(fields) > 2 {
			ip = fields[2]
		}
		name := fields[1]
		sess := model.Session{ID: OfflineID(name), Name: name, IP: ip, World: "world", GameMode: "survival"}
		d := s.Join(ctx, sess, consoleConn{name: name, console: s.console})
		if !d.Allowed {
			s.console.Print(fmt.Sprintf("[%s refused] %s", name, d.Message))
			return nil
		}
		s.console.Print(name + " joined.")
	case "leave":
		if len(fields) < 2 {
			return fmt.Errorf("usage: leave <name>")
		}
		s.Leave(OfflineID(fields[1]))
	case "chat":
		if len(fields) < 3 {
			return fmt.Errorf("usage: chat <name> <message>")
		}
		d, err := s.Chat(ctx, OfflineID(fields[1]))
		if err != nil {
			return err
		}
		if d.Allowed {
			s.console.Print(fmt.Sprintf("<%s> %s", fields[1], strings.Join(fields[2:], " ")))
		}
	case "as":
		if len(fields) < 3 {
			return fmt.Errorf("usage: as <name> <command...>")
		}
		reply, err := s.Command(ctx, OfflineID(fields[1]), strings.Join(fields[2:], " "))
		if err != nil {
			return err
		}
		if !reply.Handled {
			s.console.Print("Unknown command.")
		}
	case "gamemode":
		if len(fields) < 3 {
			return fmt.Errorf("usage: gamemode <name> <mode>")
		}
		s.GameModeChanged(OfflineID(fields[1]), strings.ToLower(fields[2]))
	default:
		reply, err := s.ConsoleCommand(ctx, line)
		if err != nil {
			return err
		}
		if !reply.Handled {
			s.console.Print("Unknown command. Type help for a list.")
			return nil
		}
		if err := reply.Wait(ctx); err != nil {
			slog.Debug("console command failed", "line", line, "err", err)
		}
	}
	return nil
}
