package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLStatementPeriods covers provider statement-period confirmations.
	// Issuers close statements monthly, so a day-old answer is still right.
	TTLStatementPeriods = 24 * time.Hour

	// TTLInstitutionStatus covers provider institution health reports.
	TTLInstitutionStatus = time.Hour
)
