package governance

// auditLog is an append-only ring. When it reaches capacity it keeps the
// newest trimTo entries. The pipeline guards it.
type auditLog struct {
	entries  []AuditEntry
	capacity int
	trimTo   int
}

func newAuditLog(capacity, trimTo int) *auditLog {
	return &auditLog{capacity: capacity, trimTo: trimTo}
}

func (a *auditLog) append(e AuditEntry) {
	a.entries = append(a.entries, e)
	if len(a.entries) > a.capacity {
		kept := make([]AuditEntry, a.trimTo)
		copy(kept, a.entries[len(a.entries)-a.trimTo:])
		a.entries = kept
	}
}

// recent returns up to n entries, newest first. n <= 0 returns all.
func (a *auditLog) recent(n int) []AuditEntry {
	if n <= 0 || n > len(a.entries) {
		n = len(a.entries)
	}
	out := make([]AuditEntry, 0, n)
	for i := len(a.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, a.entries[i])
	}
	return out
}

func (a *auditLog) resize(capacity, trimTo int) {
	a.capacity, a.trimTo = capacity, trimTo
}

func (a *auditLog) size() int {
	return len(a.entries)
}
