package book

import (
	"bytes"
	_ "embed"

	"github.com/discochess/kibitz/internal/shard/fnvshard"
	"github.com/discochess/kibitz/internal/store/memstore"
)

// builtinData holds common opening positions evaluated at depth 15.
//
//go:embed builtin.jsonl
var builtinData []byte

// builtinLayer serves the embedded positions from a single in-memory
// shard.
func builtinLayer() layer {
	lines := splitLines(builtinData)
	SortLines(lines)

	st := memstore.New()
	st.SetShard(0, append(bytes.Join(lines, []byte{'\n'}), '\n'))
	return layer{
		name:        "builtin",
		store:       st,
		strategy:    fnvshard.New(),
		totalShards: 1,
	}
}
