// Package tags allocates the correlation tags carried in a submission's user data so that the
// matching completion can be routed back to the operation that produced it.
//
// A Tag packs the operation class in its low bits and a sequence in the remaining bits,
// the same way a tagged pointer packs a tag next to an address.
package tags

import (
	"fmt"
)

// Tag
// 关联标识。零值 None 不会被分配。
type Tag uint64

// None is never handed out by an allocator.
const None Tag = 0

const (
	classBits = 3
	classMask = 1<<classBits - 1
)

// Class is the kind of operation a tag was allocated for.
type Class uint8

const (
	ClassConnect Class = iota + 1
	ClassWrite
	ClassRead
	ClassClose
)

func (c Class) String() string {
	switch c {
	case ClassConnect:
		return "connect"
	case ClassWrite:
		return "write"
	case ClassRead:
		return "read"
	case ClassClose:
		return "close"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Pack builds a tag from a class and a sequence. Sequence bits that do not fit are discarded.
func Pack(class Class, seq uint64) Tag {
	return Tag(seq<<classBits | uint64(class)&classMask)
}

func (t Tag) Class() Class {
	return Class(uint64(t) & classMask)
}

func (t Tag) Sequence() uint64 {
	return uint64(t) >> classBits
}

func (t Tag) String() string {
	return fmt.Sprintf("%s#%d", t.Class(), t.Sequence())
}

// Allocator
// 分配关联标识。
//
// 只保证在尚未完成的操作之间唯一，上限由单飞行(single-in-flight)策略约束，而不是分配器本身。
type Allocator interface {
	// Allocate returns a tag for an operation of the given class.
	// Only Arena can return None, when every slot is outstanding.
	Allocate(class Class) Tag
	// Release hands the tag back once its completion has been consumed.
	Release(tag Tag)
}
