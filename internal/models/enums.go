package models

import (
	"fmt"
	"strings"
)

// RuleType kind of rule condition
type RuleType string

const (
	RuleTypePublisher RuleType = "Publisher"
	RuleTypePath      RuleType = "Path"
	RuleTypeHash      RuleType = "Hash"
)

// Action allow or deny
type Action string

const (
	ActionAllow Action = "Allow"
	ActionDeny  Action = "Deny"
)

// CollectionType file class a collection governs
type CollectionType string

const (
	CollectionExe    CollectionType = "Exe"
	CollectionMsi    CollectionType = "Msi"
	CollectionScript CollectionType = "Script"
	CollectionDll    CollectionType = "Dll"
	CollectionAppx   CollectionType = "Appx"
)

// EnforcementMode of a rule collection
type EnforcementMode string

const (
	EnforcementAuditOnly     EnforcementMode = "AuditOnly"
	EnforcementEnabled       EnforcementMode = "Enabled"
	EnforcementNotConfigured EnforcementMode = "NotConfigured"
)

// ConflictStrategy decides between equivalent rules during a merge
type ConflictStrategy string

const (
	StrategyKeepFirst ConflictStrategy = "KeepFirst"
	StrategyKeepLast  ConflictStrategy = "KeepLast"
	StrategyMergeAll  ConflictStrategy = "MergeAll"
	StrategyNewest    ConflictStrategy = "Newest"
)

// CollectionTypes returns every collection type in document order.
func CollectionTypes() []CollectionType {
	return []CollectionType{CollectionExe, CollectionMsi, CollectionScript, CollectionDll, CollectionAppx}
}

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypePublisher, RuleTypePath, RuleTypeHash:
		return true
	}
	return false
}

func (a Action) Valid() bool {
	return a == ActionAllow || a == ActionDeny
}

func (c CollectionType) Valid() bool {
	for _, t := range CollectionTypes() {
		if c == t {
			return true
		}
	}
	return false
}

func (m EnforcementMode) Valid() bool {
	switch m {
	case EnforcementAuditOnly, EnforcementEnabled, EnforcementNotConfigured:
		return true
	}
	return false
}

func (s ConflictStrategy) Valid() bool {
	switch s {
	case StrategyKeepFirst, StrategyKeepLast, StrategyMergeAll, StrategyNewest:
		return true
	}
	return false
}

// ParseAction accepts any casing of Allow/Deny.
func ParseAction(s string) (Action, error) {
	v, err := parseEnum("action", s, ActionAllow, ActionDeny)
	return Action(v), err
}

// ParseCollectionType accepts any casing of Exe/Msi/Script/Dll/Appx.
func ParseCollectionType(s string) (CollectionType, error) {
	v, err := parseEnum("collectionType", s, CollectionExe, CollectionMsi, CollectionScript, CollectionDll, CollectionAppx)
	return CollectionType(v), err
}

// ParseEnforcementMode accepts any casing of AuditOnly/Enabled/NotConfigured.
func ParseEnforcementMode(s string) (EnforcementMode, error) {
	v, err := parseEnum("enforcementMode", s, EnforcementAuditOnly, EnforcementEnabled, EnforcementNotConfigured)
	return EnforcementMode(v), err
}

// ParseConflictStrategy accepts any casing of KeepFirst/KeepLast/MergeAll/Newest.
func ParseConflictStrategy(s string) (ConflictStrategy, error) {
	v, err := parseEnum("conflictResolution", s, StrategyKeepFirst, StrategyKeepLast, StrategyMergeAll, StrategyNewest)
	return ConflictStrategy(v), err
}

func parseEnum[T ~string](field, s string, allowed ...T) (T, error) {
	s = strings.TrimSpace(s)
	names := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if strings.EqualFold(string(a), s) {
			return a, nil
		}
		names = append(names, string(a))
	}
	var zero T
	return zero, fmt.Errorf("%w: %s %q is not one of %s", ErrConfiguration, field, s, strings.Join(names, ", "))
}
