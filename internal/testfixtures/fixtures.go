// Package testfixtures はサービス層テスト用の時計・ID・初期データ
package testfixtures

import (
	"fmt"
	"sync"
	"time"

	"ROLLCALL-backend/internal/persistence/memory"
)

// ReferenceTime はテスト共通の基準時刻（月曜 9:00 UTC）
func ReferenceTime() time.Time {
	return time.Date(2026, time.April, 6, 9, 0, 0, 0, time.UTC)
}

// Clock provides a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward and returns the updated time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// IDGenerator produces deterministic identifiers for tests.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
}

func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

func (g *IDGenerator) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s-%04d", g.prefix, g.counter), nil
}

// Codes は決められた順にセッションコードを返す。尽きたら最後の値を繰り返す
type Codes struct {
	mu    sync.Mutex
	queue []string
	last  string
	calls int
}

func NewCodes(codes ...string) *Codes {
	return &Codes{queue: codes}
}

func (c *Codes) Generate() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.queue) > 0 {
		c.last, c.queue = c.queue[0], c.queue[1:]
	}
	if c.last == "" {
		return "", fmt.Errorf("no codes configured")
	}
	return c.last, nil
}

func (c *Codes) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

const (
	Course      = "C-ALG"
	OtherCourse = "C-NET"
	Teacher     = "T-SATO"
	Outsider    = "T-ITO" // Course を担当しない教員
	Student     = "S-KATO"
	Student2    = "S-MORI"
	Stranger    = "S-ABE" // Course を履修していない学生
)

// Campus は教員2名・学生3名の小さな構成を持つ memory.Store
func Campus() *memory.Store {
	s := memory.New()
	s.AddTeacher(Teacher, "t.sato", Course)
	s.AddTeacher(Outsider, "t.ito", OtherCourse)
	s.AddStudent(Student, "s.kato", Course)
	s.AddStudent(Student2, "s.mori", Course)
	s.AddStudent(Stranger, "s.abe", OtherCourse)
	return s
}
