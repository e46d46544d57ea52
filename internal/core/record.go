package core

import "time"

// Record is implemented by pointers to every persisted kind. Identifiers are
// assigned by the store.
type Record interface {
	RecordID() int64
	SetRecordID(id int64)
	Validate() error
}

// Stamped records carry their own createdAt/updatedAt fields.
type Stamped interface {
	Stamps() (createdAt, updatedAt time.Time)
	Stamp(createdAt, updatedAt time.Time)
}

func (t *Transaction) RecordID() int64 { return t.ID }
func (t *Transaction) SetRecordID(id int64) { t.ID = id }
func (c *Category) RecordID() int64 { return c.ID }
func (c *Category) SetRecordID(id int64) { c.ID = id }
func (g *Goal) RecordID() int64 { return g.ID }
func (g *Goal) SetRecordID(id int64) { g.ID = id }
func (a *Account) RecordID() int64 { return a.ID }
func (a *Account) SetRecordID(id int64) { a.ID = id }
func (b *Budget) RecordID() int64 { return b.ID }
func (b *Budget) SetRecordID(id int64) { b.ID = id }
func (s *UserSettings) RecordID() int64 { return s.ID }
func (s *UserSettings) SetRecordID(id int64) { s.ID = id }

func (t *Transaction) Stamps() (time.Time, time.Time) { return t.CreatedAt, t.UpdatedAt }

func (t *Transaction) Stamp(createdAt, updatedAt time.Time) {
	t.CreatedAt, t.UpdatedAt = createdAt, updatedAt
}

func (g *Goal) Stamps() (time.Time, time.Time) { return g.CreatedAt, g.UpdatedAt }

func (g *Goal) Stamp(createdAt, updatedAt time.Time) {
	g.CreatedAt, g.UpdatedAt = createdAt, updatedAt
}

func (s *UserSettings) Stamps() (time.Time, time.Time) { return s.CreatedAt, s.UpdatedAt }

func (s *UserSettings) Stamp(createdAt, updatedAt time.Time) {
	s.CreatedAt, s.UpdatedAt = createdAt, updatedAt
}
