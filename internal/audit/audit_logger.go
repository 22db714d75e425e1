package audit

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

// Actions recorded in the operation log.
const (
	ActionRegister         = "USER_REGISTER"
	ActionPointRecharge    = "POINT_RECHARGE"
	ActionAdminAdjust      = "ADMIN_ADJUST_POINTS"
	ActionResourceCreate   = "RESOURCE_CREATE"
	ActionResourceUpdate   = "RESOURCE_UPDATE"
	ActionResourceDelete   = "RESOURCE_DELETE"
	ActionResourceDownload = "RESOURCE_DOWNLOAD"
	ActionOrderApprove     = "RECHARGE_ORDER_APPROVE"
)

type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"user_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Details      string    `json:"details,omitempty"`
}

// Logger records privileged and balance-affecting operations. Entries go to
// the operation_logs table and to the process log; persistence is
// best-effort and never fails the calling request.
type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

func (l *Logger) LogOperation(userID, action, resourceType, resourceID, ip, userAgent, details string) {
	event := Event{
		Timestamp:    time.Now(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Details:      details,
	}
	l.log(event)

	if l.db == nil {
		return
	}
	_, err := l.db.Exec(`
		INSERT INTO operation_logs (user_id, action, resource_type, resource_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, action, resourceType, resourceID, ip, userAgent, details, event.Timestamp)
	if err != nil {
		log.Printf("[AUDIT] Failed to persist operation log: %v", err)
	}
}

func (l *Logger) LogError(userID, action string, err error) {
	event := Event{
		Timestamp: time.Now(),
		UserID:    userID,
		Action:    action,
		Details:   err.Error(),
	}
	l.log(event)
}

func (l *Logger) log(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[AUDIT] Failed to marshal event: %v", err)
		return
	}
	log.Printf("[AUDIT] %s", string(data))
}
