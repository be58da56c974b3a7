package database

import (
	"time"

	"gorm.io/gorm"
)

// CallRecord is one finished voice call heard or sent by the terminal
type CallRecord struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	SrcID      string    `gorm:"index;size:16;not null" json:"src_id"`
	DstID      string    `gorm:"index;size:16;not null" json:"dst_id"`
	Alias      string    `gorm:"size:64" json:"alias,omitempty"`
	Frequency  string    `gorm:"size:32" json:"frequency,omitempty"`
	Direction  string    `gorm:"size:2;not null" json:"direction"` // rx or tx
	Scan       bool      `json:"scan"`
	Zone       string    `gorm:"size:64" json:"zone"`
	Channel    string    `gorm:"size:64" json:"channel"`
	Duration   float64   `gorm:"not null" json:"duration"` // Duration in seconds
	StartTime  time.Time `gorm:"index;not null" json:"start_time"`
	EndTime    time.Time `gorm:"not null" json:"end_time"`
	FrameCount int       `gorm:"default:0" json:"frame_count"`
	EndReason  string    `gorm:"size:32" json:"end_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for CallRecord
func (CallRecord) TableName() string {
	return "calls"
}

// BeforeCreate fills missing timestamps
func (c *CallRecord) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.StartTime.IsZero() {
		c.StartTime = now
	}
	if c.EndTime.IsZero() {
		c.EndTime = c.StartTime.Add(time.Duration(c.Duration * float64(time.Second)))
	}
	return nil
}

// Alert kinds
const (
	AlertEmergency = "emergency"
	AlertCallAlert = "call_alert"
	AlertPage      = "page"
	AlertFault     = "fault"
	AlertInhibit   = "inhibit"
	AlertUninhibit = "uninhibit"
)

// AlertRecord is a page, call alert, emergency, fault or inhibit command
type AlertRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Kind      string    `gorm:"index;size:16;not null" json:"kind"`
	SrcID     string    `gorm:"index;size:16" json:"src_id,omitempty"`
	DstID     string    `gorm:"size:16" json:"dst_id,omitempty"`
	Alias     string    `gorm:"size:64" json:"alias,omitempty"`
	Detail    string    `gorm:"size:64" json:"detail,omitempty"`
	Lat       *float64  `json:"lat,omitempty"`
	Long      *float64  `json:"long,omitempty"`
	RaisedAt  time.Time `gorm:"index;not null" json:"raised_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for AlertRecord
func (AlertRecord) TableName() string {
	return "alerts"
}

// BeforeCreate fills missing timestamps
func (a *AlertRecord) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.RaisedAt.IsZero() {
		a.RaisedAt = a.CreatedAt
	}
	return nil
}

// Alias maps a radio ID to the name shown on the display
type Alias struct {
	RID       string    `gorm:"primarykey;size:16;not null" json:"rid"`
	Alias     string    `gorm:"size:64;not null" json:"alias"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Alias
func (Alias) TableName() string {
	return "aliases"
}
