package dto

import "github.com/customeros/mailmedic/internal/enum"

type StatusChanged struct {
	EntityType enum.EntityType `json:"entityType"`
	EntityID   string          `json:"entityId"`
	FromState  string          `json:"fromState"`
	ToState    string          `json:"toState"`
	Reason     string          `json:"reason"`
}

type ManualInterventionRequired struct {
	EntityType enum.EntityType `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Reason     string          `json:"reason"`
}

type AccountWarning struct {
	Reason string `json:"reason"`
}

type ReportReady struct {
	ReportID     string `json:"reportId"`
	OverallScore int    `json:"overallScore"`
}
