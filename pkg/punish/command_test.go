package punish

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		args []string
		want Command
	}{
		{"ban with duration", "ban", []string{"Alice", "1d", "Griefing", "spawn"}, Ban{Target: Target{Name: "Alice"}, Duration: 24 * time.Hour, Reason: "Griefing spawn"}},
		{"ban permanent", "ban", []string{"Alice", "Hacking"}, Ban{Target: Target{Name: "Alice"}, Reason: "Hacking"}},
		{"ban without reason", "BAN", []string{"Alice"}, Ban{Target: Target{Name: "Alice"}}},
		{"ban duration only", "ban", []string{"Alice", "2h30m"}, Ban{Target: Target{Name: "Alice"}, Duration: 150 * time.Minute}},
		{"ban ip", "ban", []string{"203.0.113.4", "proxy"}, Ban{Target: Target{IP: "203.0.113.4"}, Reason: "proxy"}},
		{"ban range is masked", "ban", []string{"10.1.2.3/8", "proxy"}, Ban{Target: Target{Range: "10.0.0.0/8"}, Reason: "proxy"}},
		{"tempban", "tempban", []string{"Alice", "7d", "x"}, Ban{Target: Target{Name: "Alice"}, Duration: 7 * 24 * time.Hour, Reason: "x", Temp: true}},
		{"tempmute", "tempmute", []string{"Bob", "30m"}, Mute{Target: Target{Name: "Bob"}, Duration: 30 * time.Minute, Temp: true}},
		{"kick", "kick", []string{"Bob", "go", "away"}, Kick{Target: "Bob", Reason: "go away"}},
		{"warn", "warn", []string{"Bob", "language"}, Warn{Target: "Bob", Reason: "language"}},
		{"unban ip", "unban", []string{"203.0.113.4"}, Unban{Target: Target{IP: "203.0.113.4"}}},
		{"unmute", "unmute", []string{"Bob", "served"}, Unmute{Target: "Bob", Reason: "served"}},
		{"history", "history", []string{"Bob"}, History{Target: "Bob"}},
		{"alts", "alts", []string{"Bob"}, Alts{Target: "Bob"}},
		{"note", "note", []string{"Bob", "likes", "tnt"}, Note{Target: "Bob", Message: "likes tnt"}},
		{"report", "report", []string{"Bob", "xray"}, Report{Target: "Bob", Reason: "xray"}},
		{"banname", "banname", []string{"Badname", "1w"}, NameBan{Player: "Badname", Duration: 7 * 24 * time.Hour}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.cmd, tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_Usage(t *testing.T) {
	tests := []struct {
		cmd  string
		args []string
	}{
		{"ban", nil},
		{"tempban", []string{"Alice", "Griefing"}},
		{"tempmute", []string{"Alice"}},
		{"mute", []string{"10.0.0.1"}},
		{"note", []string{"Alice"}},
		{"report", []string{"Alice"}},
		{"fly", []string{"Alice"}},
	}
	for _, tc := range tests {
		_, err := Parse(tc.cmd, tc.args)
		var pe *Error
		require.True(t, errors.As(err, &pe), "%s %v", tc.cmd, tc.args)
		assert.Equal(t, KindUsage, pe.Kind)
	}
}

func TestCommandNames(t *testing.T) {
	for _, name := range Commands {
		assert.NotEmpty(t, UsageFor(name), name)
		cmd, err := Parse(name, []string{"Alice", "1h", "reason"})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestErrorMessagesHideCause(t *testing.T) {
	err := Storage(errors.New("database is locked"))
	assert.NotContains(t, UserText(err), "locked")
	assert.ErrorContains(t, err, "locked")
	assert.Equal(t, KindStorage, KindOf(err))
	assert.Equal(t, ErrorKind(0), KindOf(errors.New("plain")))
}

func TestFormatHistory_Empty(t *testing.T) {
	assert.Equal(t, "Alice has a clean history.", formatHistory("Alice", nil, time.Now()))
}
