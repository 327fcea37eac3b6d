package domain

import "time"

// тип задачи, присланной координатором

type JobType string

const (
	JobTypePing  JobType = "ping"
	JobTypeDNS   JobType = "dns"
	JobTypeTCP   JobType = "tcp"
	JobTypeUDP   JobType = "udp"
	JobTypeHTTP  JobType = "http"
	JobTypeCheck JobType = "check"
)

// Capabilities is the fixed set of job types announced on registration.
var Capabilities = []JobType{
	JobTypePing,
	JobTypeDNS,
	JobTypeTCP,
	JobTypeUDP,
	JobTypeHTTP,
	JobTypeCheck,
}

func (t JobType) Valid() bool {
	for _, c := range Capabilities {
		if c == t {
			return true
		}
	}
	return false
}

// типы DNS записей

type DNSRecordType string

const (
	DNSRecordA     DNSRecordType = "A"
	DNSRecordAAAA  DNSRecordType = "AAAA"
	DNSRecordCNAME DNSRecordType = "CNAME"
	DNSRecordMX    DNSRecordType = "MX"
	DNSRecordNS    DNSRecordType = "NS"
	DNSRecordTXT   DNSRecordType = "TXT"
)

// Job is a single unit of work received from the coordinator.
// Metadata is opaque and echoed back untouched.
type Job struct {
	ID         string         `json:"id"`
	Type       JobType        `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	Metadata   any            `json:"metadata,omitempty"`
	ReceivedAt time.Time      `json:"-"`
}
