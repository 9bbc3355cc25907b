package gpio

import (
	"fmt"
	"sync"
)

type OpKind uint8

const (
	OpDirection OpKind = iota + 1
	OpSet
	OpGet
)

type Op struct {
	Kind  OpKind
	Line  Line
	Dir   Direction // OpDirection
	Value bool      // OpSet, OpGet result
}

func (op Op) String() string {
	switch op.Kind {
	case OpDirection:
		return fmt.Sprintf("dir(%d)=%s", op.Line, op.Dir)
	case OpSet:
		return fmt.Sprintf("set(%d)=%d", op.Line, levelByte(op.Value))
	case OpGet:
		return fmt.Sprintf("get(%d)=%d", op.Line, levelByte(op.Value))
	}
	return fmt.Sprintf("Op(%d)", op.Kind)
}

// Mock records every call, keeps line state in memory.
// Values returned by Value() come from Input if set, otherwise last SetValue.
type Mock struct {
	mu    sync.Mutex
	ops   []Op
	dir   map[Line]Direction
	value map[Line]bool

	Input map[Line]bool
	// Fail, when not nil, is consulted before each op; non-nil error aborts the op.
	Fail func(op Op) error
}

func NewMock() *Mock {
	return &Mock{
		dir:   make(map[Line]Direction),
		value: make(map[Line]bool),
		Input: make(map[Line]bool),
	}
}

func (self *Mock) SetDirection(line Line, dir Direction) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	op := Op{Kind: OpDirection, Line: line, Dir: dir}
	if self.Fail != nil {
		if err := self.Fail(op); err != nil {
			return err
		}
	}
	self.ops = append(self.ops, op)
	self.dir[line] = dir
	return nil
}

func (self *Mock) SetValue(line Line, value bool) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	op := Op{Kind: OpSet, Line: line, Value: value}
	if self.Fail != nil {
		if err := self.Fail(op); err != nil {
			return err
		}
	}
	self.ops = append(self.ops, op)
	self.value[line] = value
	return nil
}

func (self *Mock) Value(line Line) (bool, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	v, ok := self.Input[line]
	if !ok {
		v = self.value[line]
	}
	op := Op{Kind: OpGet, Line: line, Value: v}
	if self.Fail != nil {
		if err := self.Fail(op); err != nil {
			return false, err
		}
	}
	self.ops = append(self.ops, op)
	return v, nil
}

// Ops returns copy of recorded operations.
func (self *Mock) Ops() []Op {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]Op(nil), self.ops...)
}

func (self *Mock) Reset() {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.ops = self.ops[:0]
}

func (self *Mock) Direction(line Line) Direction {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.dir[line]
}

func (self *Mock) Level(line Line) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.value[line]
}
