package paranormal

import (
	"fmt"
)

// Command is one reversible document edit.
//
// Do applies the edit and is also used to redo it after Undo. Both methods
// must leave the document unchanged when they return an error.
type Command interface {
	Name() string
	Do() error
	Undo() error
}

// DefaultHistoryLimit is the number of commands kept by NewHistory(0).
const DefaultHistoryLimit = 100

// History is an undo/redo log of commands.
//
// Commands in recs[:idx] are applied; recs[idx:] have been undone and can be
// redone. Doing a new command discards the redo tail. Commands issued
// between BeginGroup and EndGroup are recorded as a single entry.
type History struct {
	recs  []Command
	idx   int
	limit int

	group *commandGroup
	depth int
}

// NewHistory returns an empty history that keeps at most limit entries.
// A limit of zero or less uses DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Limit returns the maximum number of entries kept.
func (h *History) Limit() int { return h.limit }

// Len returns the number of recorded entries, applied and undone.
func (h *History) Len() int { return len(h.recs) }

// CanUndo reports whether an applied entry exists.
func (h *History) CanUndo() bool { return h.idx > 0 && h.group == nil }

// CanRedo reports whether an undone entry exists.
func (h *History) CanRedo() bool { return h.idx < len(h.recs) && h.group == nil }

// UndoName returns the name of the entry Undo would revert, or "".
func (h *History) UndoName() string {
	if h.idx == 0 {
		return ""
	}
	return h.recs[h.idx-1].Name()
}

// RedoName returns the name of the entry Redo would apply, or "".
func (h *History) RedoName() string {
	if h.idx >= len(h.recs) {
		return ""
	}
	return h.recs[h.idx].Name()
}

// Do applies cmd and records it. A command that fails is not recorded.
func (h *History) Do(cmd Command) error {
	if err := cmd.Do(); err != nil {
		return err
	}
	if h.group != nil {
		h.group.cmds = append(h.group.cmds, cmd)
		return nil
	}
	h.record(cmd)
	return nil
}

func (h *History) record(cmd Command) {
	h.recs = append(h.recs[:h.idx], cmd)
	if len(h.recs) > h.limit {
		drop := len(h.recs) - h.limit
		h.recs = append(h.recs[:0], h.recs[drop:]...)
	}
	h.idx = len(h.recs)
}

// Undo reverts the most recent applied entry and returns it.
func (h *History) Undo() (Command, error) {
	if h.group != nil {
		return nil, ErrGroupOpen
	}
	if h.idx == 0 {
		return nil, ErrNothingToUndo
	}
	cmd := h.recs[h.idx-1]
	if err := cmd.Undo(); err != nil {
		return nil, fmt.Errorf("paranormal: undo %q: %w", cmd.Name(), err)
	}
	h.idx--
	return cmd, nil
}

// Redo reapplies the most recently undone entry and returns it.
func (h *History) Redo() (Command, error) {
	if h.group != nil {
		return nil, ErrGroupOpen
	}
	if h.idx >= len(h.recs) {
		return nil, ErrNothingToRedo
	}
	cmd := h.recs[h.idx]
	if err := cmd.Do(); err != nil {
		return nil, fmt.Errorf("paranormal: redo %q: %w", cmd.Name(), err)
	}
	h.idx++
	return cmd, nil
}

// BeginGroup starts collecting commands into one entry named name.
// Groups nest; only the outermost name is kept.
func (h *History) BeginGroup(name string) {
	h.depth++
	if h.group == nil {
		h.group = &commandGroup{name: name}
	}
}

// EndGroup closes the innermost group. When the outermost group closes, its
// commands are recorded as one entry, or nothing if it is empty.
func (h *History) EndGroup() {
	if h.depth == 0 {
		return
	}
	h.depth--
	if h.depth > 0 {
		return
	}
	g := h.group
	h.group = nil
	if len(g.cmds) > 0 {
		h.record(g)
	}
}

// Clear drops all entries, including an open group.
func (h *History) Clear() {
	h.recs = nil
	h.idx = 0
	h.group = nil
	h.depth = 0
}

// commandGroup applies its commands in order and reverts them in reverse.
type commandGroup struct {
	name string
	cmds []Command
}

func (g *commandGroup) Name() string { return g.name }

func (g *commandGroup) Do() error {
	for i, cmd := range g.cmds {
		if err := cmd.Do(); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = g.cmds[j].Undo()
			}
			return err
		}
	}
	return nil
}

func (g *commandGroup) Undo() error {
	for i := len(g.cmds) - 1; i >= 0; i-- {
		if err := g.cmds[i].Undo(); err != nil {
			for j := i + 1; j < len(g.cmds); j++ {
				_ = g.cmds[j].Do()
			}
			return err
		}
	}
	return nil
}
