// Package memory は persistence.Store のプロセス内実装。dev 起動とテストで使う。
// MySQL 実装と同じ一意制約を持ち、Tx 単位でスナップショットから巻き戻す。
package memory

import (
	"context"
	"sync"
	"time"

	"ROLLCALL-backend/internal/persistence"
)

type pair struct{ a, b string }

type codeHold struct {
	sessionID string
	expiresAt time.Time
}

type state struct {
	accounts map[string]persistence.Account
	students map[string]persistence.Student
	teachers map[string]persistence.Teacher
	teaching map[pair]struct{} // teacher, course
	enrolled map[pair]struct{} // student, course
	sessions map[string]persistence.Session
	codes    map[string]codeHold
	marks    map[pair]persistence.AttendanceMark // session, student
	markers  map[string]persistence.Marker
	order    []string // markers の挿入順
}

func newState() *state {
	return &state{
		accounts: map[string]persistence.Account{},
		students: map[string]persistence.Student{},
		teachers: map[string]persistence.Teacher{},
		teaching: map[pair]struct{}{},
		enrolled: map[pair]struct{}{},
		sessions: map[string]persistence.Session{},
		codes:    map[string]codeHold{},
		marks:    map[pair]persistence.AttendanceMark{},
		markers:  map[string]persistence.Marker{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.students {
		c.students[k] = v
	}
	for k, v := range s.teachers {
		c.teachers[k] = v
	}
	for k := range s.teaching {
		c.teaching[k] = struct{}{}
	}
	for k := range s.enrolled {
		c.enrolled[k] = struct{}{}
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	for k, v := range s.marks {
		c.marks[k] = v
	}
	for k, v := range s.markers {
		c.markers[k] = v
	}
	c.order = append([]string(nil), s.order...)
	return c
}

// Store は全 Tx を1本のロックで直列化する。(student, course) の排他もこれで満たす
type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
		if err != nil {
			s.st = snapshot
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &tx{st: s.st})
}

func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &tx{st: s.st, readOnly: true})
}

// tx は persistence.Tx の実装。Store のロック下でのみ使われる
type tx struct {
	st       *state
	readOnly bool
}

var _ persistence.Tx = (*tx)(nil)

func (t *tx) writable() error {
	if t.readOnly {
		return persistence.ErrReadOnly
	}
	return nil
}
