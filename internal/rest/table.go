package rest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/danmuck/edgelink/internal/driver"
	"github.com/danmuck/edgelink/internal/protocol"
)

var (
	ErrUnknownOp  = errors.New("rest: unknown operation")
	ErrMissingArg = errors.New("rest: missing argument")
	ErrInvalidArg = errors.New("rest: invalid argument")
)

type Op string

const (
	OpLoadTracks    Op = "loadTracks"
	OpSearch        Op = "search"
	OpDecodeTrack   Op = "decodeTrack"
	OpDecodeTracks  Op = "decodeTracks"
	OpPlayers       Op = "players"
	OpPlayer        Op = "player"
	OpUpdatePlayer  Op = "updatePlayer"
	OpDestroyPlayer Op = "destroyPlayer"
	OpInfo          Op = "info"
	OpStats         Op = "stats"
	OpUpdateSession Op = "updateSession"
)

// Args carries string arguments from callers that only speak text (admin
// HTTP, CLI flags).
type Args map[string]string

func (a Args) Require(key string) (string, error) {
	v := strings.TrimSpace(a[key])
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingArg, key)
	}
	return v, nil
}

func (a Args) Bool(key string) (*bool, error) {
	v, ok := a[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidArg, key, v)
	}
	return &b, nil
}

func (a Args) Int(key string) (*int64, error) {
	v, ok := a[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidArg, key, v)
	}
	return &n, nil
}

type Handler func(ctx context.Context, d driver.Driver, args Args) (any, error)

// Table maps operation names to handlers. It is read-only after NewTable.
type Table struct {
	handlers map[Op]Handler
}

func NewTable() *Table {
	return &Table{handlers: map[Op]Handler{
		OpLoadTracks:    handleLoadTracks,
		OpSearch:        handleSearch,
		OpDecodeTrack:   handleDecodeTrack,
		OpDecodeTracks:  handleDecodeTracks,
		OpPlayers:       handlePlayers,
		OpPlayer:        handlePlayer,
		OpUpdatePlayer:  handleUpdatePlayer,
		OpDestroyPlayer: handleDestroyPlayer,
		OpInfo:          handleInfo,
		OpStats:         handleStats,
		OpUpdateSession: handleUpdateSession,
	}}
}

func (t *Table) Lookup(op Op) (Handler, bool) {
	h, ok := t.handlers[op]
	return h, ok
}

// Ops returns operation names in stable order.
func (t *Table) Ops() []Op {
	out := make([]Op, 0, len(t.handlers))
	for op := range t.handlers {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Invoke runs op against d. A nil result means the node returned nothing.
func (t *Table) Invoke(ctx context.Context, d driver.Driver, op Op, args Args) (any, error) {
	h, ok := t.Lookup(op)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
	if args == nil {
		args = Args{}
	}
	out, err := h(ctx, d, args)
	if err != nil {
		return nil, err
	}
	return nilIfEmpty(out), nil
}

// nilIfEmpty unwraps typed nil pointers and slices so callers can test
// result == nil.
func nilIfEmpty(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}

func handleLoadTracks(ctx context.Context, d driver.Driver, args Args) (any, error) {
	id, err := args.Require("identifier")
	if err != nil {
		return nil, err
	}
	return LoadTracks(ctx, d, id)
}

func handleSearch(ctx context.Context, d driver.Driver, args Args) (any, error) {
	q, err := args.Require("query")
	if err != nil {
		return nil, err
	}
	return Search(ctx, d, q, strings.TrimSpace(args["engine"]))
}

func handleDecodeTrack(ctx context.Context, d driver.Driver, args Args) (any, error) {
	enc, err := args.Require("encoded")
	if err != nil {
		return nil, err
	}
	return DecodeTrack(ctx, d, enc)
}

func handleDecodeTracks(ctx context.Context, d driver.Driver, args Args) (any, error) {
	list, err := args.Require("encoded")
	if err != nil {
		return nil, err
	}
	var encoded []string
	for _, e := range strings.Split(list, ",") {
		if e = strings.TrimSpace(e); e != "" {
			encoded = append(encoded, e)
		}
	}
	return DecodeTracks(ctx, d, encoded)
}

func handlePlayers(ctx context.Context, d driver.Driver, _ Args) (any, error) {
	return Players(ctx, d)
}

func handlePlayer(ctx context.Context, d driver.Driver, args Args) (any, error) {
	guild, err := args.Require("guild")
	if err != nil {
		return nil, err
	}
	return Player(ctx, d, guild)
}

// handleUpdatePlayer reads encoded, stop, position, endTime, volume, paused,
// and noReplace.
func handleUpdatePlayer(ctx context.Context, d driver.Driver, args Args) (any, error) {
	guild, err := args.Require("guild")
	if err != nil {
		return nil, err
	}
	update := protocol.PlayerUpdate{}
	if enc := strings.TrimSpace(args["encoded"]); enc != "" {
		update.Track = &protocol.UpdateTrack{Encoded: &enc}
	}
	stop, err := args.Bool("stop")
	if err != nil {
		return nil, err
	}
	if stop != nil && *stop {
		update.Track = &protocol.UpdateTrack{}
	}
	if update.Position, err = args.Int("position"); err != nil {
		return nil, err
	}
	if update.EndTime, err = args.Int("endTime"); err != nil {
		return nil, err
	}
	vol, err := args.Int("volume")
	if err != nil {
		return nil, err
	}
	if vol != nil {
		v := int(*vol)
		update.Volume = &v
	}
	if update.Paused, err = args.Bool("paused"); err != nil {
		return nil, err
	}
	noReplace, err := args.Bool("noReplace")
	if err != nil {
		return nil, err
	}
	return UpdatePlayer(ctx, d, guild, update, noReplace != nil && *noReplace)
}

func handleDestroyPlayer(ctx context.Context, d driver.Driver, args Args) (any, error) {
	guild, err := args.Require("guild")
	if err != nil {
		return nil, err
	}
	return nil, DestroyPlayer(ctx, d, guild)
}

func handleInfo(ctx context.Context, d driver.Driver, _ Args) (any, error) {
	return Info(ctx, d)
}

func handleStats(ctx context.Context, d driver.Driver, _ Args) (any, error) {
	return Stats(ctx, d)
}

// handleUpdateSession defaults sessionId to the driver's live session.
func handleUpdateSession(ctx context.Context, d driver.Driver, args Args) (any, error) {
	id := strings.TrimSpace(args["sessionId"])
	if id == "" {
		id = d.Session().ID
	}
	resume, err := args.Bool("resume")
	if err != nil {
		return nil, err
	}
	timeout, err := args.Int("timeout")
	if err != nil {
		return nil, err
	}
	sess := d.Session()
	r, secs := sess.Resume, sess.TimeoutSeconds
	if resume != nil {
		r = *resume
	}
	if timeout != nil {
		secs = int(*timeout)
	}
	if err := d.UpdateSession(ctx, id, r, secs); err != nil {
		return nil, err
	}
	return d.Session(), nil
}
