package logview

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/m8test/m8link/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id int64, level common.Level, tag, message string) common.LogRecord {
	return common.LogRecord{ID: id, Level: level, Tag: tag, Message: message, Time: "10:00:00.000"}
}

func sample() []common.LogRecord {
	return []common.LogRecord{
		rec(1, common.LevelDebug, "Main", "booting"),
		rec(2, common.LevelInfo, "Net", "Connected to host"),
		rec(3, common.LevelWarn, "Main", "slow frame"),
		rec(4, common.LevelError, "Net", "connection reset"),
		rec(5, common.LevelInfo, "Main", "done\nwith trailer"),
		rec(6, common.LevelUnknown, "Odd", "mystery"),
	}
}

func ids(records []common.LogRecord) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestFilterMatches(t *testing.T) {
	r := rec(1, common.LevelWarn, "NetTag", "Socket Timeout")

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"default", DefaultFilter(), true},
		{"zero value", Filter{}, true},
		{"same level", Filter{Level: common.LevelWarn}, true},
		{"other level", Filter{Level: common.LevelError}, false},
		{"query in message, different case", Filter{Level: LevelAll, Query: "socket timeout"}, true},
		{"query in tag", Filter{Level: LevelAll, Query: "nettag"}, true},
		{"query in prefix", Filter{Level: LevelAll, Query: "[warn ]"}, true},
		{"query in time", Filter{Level: LevelAll, Query: "10:00"}, true},
		{"query miss", Filter{Level: LevelAll, Query: "absent"}, false},
		{"level and query", Filter{Level: common.LevelWarn, Query: "socket"}, true},
		{"level hit query miss", Filter{Level: common.LevelWarn, Query: "absent"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Matches(r))
		})
	}
}

func TestParseLevelFilter(t *testing.T) {
	cases := []struct {
		in      string
		want    common.Level
		wantErr bool
	}{
		{"", LevelAll, false},
		{"all", LevelAll, false},
		{"ALL", LevelAll, false},
		{"warn", common.LevelWarn, false},
		{" Verbose ", common.LevelVerbose, false},
		{"unknown", common.LevelUnknown, false},
		{"loud", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevelFilter(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseDestination(t *testing.T) {
	d, err := ParseDestination("Script")
	require.NoError(t, err)
	assert.Equal(t, DestScript, d)

	d, err = ParseDestination("plugin")
	require.NoError(t, err)
	assert.Equal(t, DestPlugin, d)

	_, err = ParseDestination("ide")
	assert.Error(t, err)
}

func TestRouter_IngestKeepsHistoryRegardlessOfFilter(t *testing.T) {
	r := NewRouter(nil)
	r.SetLevelFilter(common.LevelError)

	for _, x := range sample() {
		require.True(t, r.Ingest(DestScript, x))
	}

	assert.Equal(t, sample(), r.History(DestScript), "history keeps every record in order")
	assert.Equal(t, []int64{4}, ids(r.Rendered(DestScript)))
	assert.Empty(t, r.History(DestPlugin))
}

func TestRouter_FilterReplay(t *testing.T) {
	r := NewRouter(nil)
	for _, x := range sample() {
		r.Ingest(DestScript, x)
	}

	steps := []struct {
		name  string
		apply func()
		want  []int64
	}{
		{"info only", func() { r.SetLevelFilter(common.LevelInfo) }, []int64{2, 5}},
		{"info + query", func() { r.SetSearchQuery("TRAILER") }, []int64{5}},
		{"all + query", func() { r.SetLevelFilter(LevelAll) }, []int64{5}},
		{"query on tag", func() { r.SetSearchQuery("net") }, []int64{2, 4}},
		{"unknown level", func() { r.SetSearchQuery(""); r.SetLevelFilter(common.LevelUnknown) }, []int64{6}},
		{"reset", func() { r.SetLevelFilter(LevelAll) }, []int64{1, 2, 3, 4, 5, 6}},
	}

	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			s.apply()
			assert.Equal(t, s.want, ids(r.Rendered(DestScript)))
			assert.Len(t, r.History(DestScript), 6)
		})
	}
}

// Rendered output depends only on history and the final filter, never on
// the sequence of filter changes that led there.
func TestRouter_ReplayIsPathIndependent(t *testing.T) {
	levels := append([]common.Level{LevelAll}, common.Levels...)
	queries := []string{"", "main", "net", "CONN", "zzz"}

	rng := rand.New(rand.NewSource(42))
	r := NewRouter(nil)
	for i := 0; i < 300; i++ {
		level := common.Levels[rng.Intn(len(common.Levels))]
		tag := []string{"Main", "Net", "Ui"}[rng.Intn(3)]
		r.Ingest(DestScript, rec(int64(i+1), level, tag, fmt.Sprintf("msg %d conn=%v", i, i%4 == 0)))

		if i%25 == 0 {
			r.SetLevelFilter(levels[rng.Intn(len(levels))])
			r.SetSearchQuery(queries[rng.Intn(len(queries))])
		}
	}

	final := r.Filter()
	var want []int64
	for _, x := range r.History(DestScript) {
		if final.Matches(x) {
			want = append(want, x.ID)
		}
	}
	assert.Equal(t, want, nonNil(ids(r.Rendered(DestScript))))

	fresh := NewRouter(nil)
	for _, x := range r.History(DestScript) {
		fresh.Ingest(DestScript, x)
	}
	fresh.SetLevelFilter(final.Level)
	fresh.SetSearchQuery(final.Query)
	assert.Equal(t, r.Rendered(DestScript), fresh.Rendered(DestScript))
}

func nonNil(v []int64) []int64 {
	if len(v) == 0 {
		return nil
	}
	return v
}

func TestRouter_ClearIsScoped(t *testing.T) {
	r := NewRouter(nil)
	for _, x := range sample() {
		r.Ingest(DestScript, x)
		r.Ingest(DestPlugin, x)
	}

	require.True(t, r.Clear(DestScript))
	assert.Empty(t, r.History(DestScript))
	assert.Empty(t, r.Rendered(DestScript))
	assert.Len(t, r.History(DestPlugin), 6)
	assert.Len(t, r.Rendered(DestPlugin), 6)

	// A reload after clear does not resurrect records.
	r.SetLevelFilter(LevelAll)
	assert.Empty(t, r.Rendered(DestScript))

	r.ClearAll()
	assert.Empty(t, r.History(DestPlugin))
	assert.Empty(t, r.Rendered(DestPlugin))
}

func TestRouter_UnknownDestination(t *testing.T) {
	r := NewRouter(nil)
	assert.False(t, r.Ingest("ide", sample()[0]))
	assert.False(t, r.Clear("ide"))
	assert.Nil(t, r.History("ide"))
	assert.Nil(t, r.View("ide"))
}

// countingRenderer records resets for reload assertions
type countingRenderer struct {
	Buffer
	resets int
}

func (c *countingRenderer) Reset() {
	c.resets++
	c.Buffer.Reset()
}

func TestRouter_CustomRenderer(t *testing.T) {
	cr := &countingRenderer{}
	r := NewRouter(map[Destination]Renderer{DestPlugin: cr})

	r.Ingest(DestPlugin, sample()[0])
	r.Ingest(DestPlugin, sample()[3])
	assert.Equal(t, 0, cr.resets)
	assert.Equal(t, 2, cr.Len())

	r.SetSearchQuery("reset")
	assert.Equal(t, 1, cr.resets)
	assert.Equal(t, []int64{4}, ids(cr.Records()))
	assert.Equal(t, []int64{4}, ids(r.Rendered(DestPlugin)), "computed from history for non-Buffer renderers")
}

func TestWriterRenderer_Plain(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterRenderer(&buf, true)

	w.Append(rec(1, common.LevelWarn, "Main", "careful"))
	w.Append(rec(2, common.LevelInfo, "Main", "fine"))
	w.Reset()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"10:00:00.000 [WARN ] Main: careful",
		"10:00:00.000 [INFO ] Main: fine",
	}, lines, "non-terminal output carries no escape sequences")
}

func TestStyles(t *testing.T) {
	r := rec(1, common.LevelError, "T", "m")
	assert.Equal(t, r.Line(), Styles{}.Render(r))
}
