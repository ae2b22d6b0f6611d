package clock

import "time"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Real は実時刻（UTC）を返す Clock
func Real() Clock { return realClock{} }
