// Package policydoc reads and writes AppLocker policy XML.
package policydoc

import (
	"bytes"
	"crypto/sha256"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ruleforge/ruleforge/internal/models"
)

const (
	schemaVersion = "1"

	elemPublisherRule = "FilePublisherRule"
	elemPathRule      = "FilePathRule"
	elemHashRule      = "FileHashRule"

	provenanceMarker = "ruleforge:provenance="
)

// ruleNamespace seeds deterministic ids for rules that arrive without one.
var ruleNamespace = uuid.MustParse("5b1f0c3e-8f4e-4d8a-9a57-3c1f1f6e2a10")

type xmlPolicy struct {
	XMLName     xml.Name        `xml:"AppLockerPolicy"`
	Version     string          `xml:"Version,attr"`
	Comment     string          `xml:",comment"`
	Collections []xmlCollection `xml:"RuleCollection"`
}

type xmlCollection struct {
	Type            string `xml:"Type,attr"`
	EnforcementMode string `xml:"EnforcementMode,attr"`
	// Rules keeps publisher, path and hash rules in document order.
	Rules []xmlRule `xml:",any"`
}

type xmlRule struct {
	XMLName        xml.Name
	ID             string        `xml:"Id,attr"`
	Name           string        `xml:"Name,attr"`
	Description    string        `xml:"Description,attr"`
	UserOrGroupSid string        `xml:"UserOrGroupSid,attr"`
	Action         string        `xml:"Action,attr"`
	Conditions     xmlConditions `xml:"Conditions"`
}

type xmlConditions struct {
	Publisher *xmlPublisherCondition `xml:"FilePublisherCondition,omitempty"`
	Path      *xmlPathCondition      `xml:"FilePathCondition,omitempty"`
	Hash      *xmlHashCondition      `xml:"FileHashCondition,omitempty"`
}

type xmlPublisherCondition struct {
	PublisherName string          `xml:"PublisherName,attr"`
	ProductName   string          `xml:"ProductName,attr"`
	BinaryName    string          `xml:"BinaryName,attr"`
	VersionRange  xmlVersionRange `xml:"BinaryVersionRange"`
}

type xmlVersionRange struct {
	LowSection  string `xml:"LowSection,attr"`
	HighSection string `xml:"HighSection,attr"`
}

type xmlPathCondition struct {
	Path string `xml:"Path,attr"`
}

type xmlHashCondition struct {
	Hashes []xmlFileHash `xml:"FileHash"`
}

type xmlFileHash struct {
	Type             string `xml:"Type,attr"`
	Data             string `xml:"Data,attr"`
	SourceFileName   string `xml:"SourceFileName,attr"`
	SourceFileLength string `xml:"SourceFileLength,attr"`
}

// Marshal renders a policy as AppLocker XML. Collections are written in
// document order and every rule must pass Validate.
func Marshal(p *models.Policy) ([]byte, error) {
	doc := xmlPolicy{Version: schemaVersion}
	if p != nil && p.Provenance != "" {
		doc.Comment = " " + provenanceMarker + string(p.Provenance) + " "
	}

	for _, c := range p.OrderedCollections() {
		xc := xmlCollection{
			Type:            string(c.Type),
			EnforcementMode: string(c.EnforcementMode),
			Rules:           make([]xmlRule, 0, len(c.Rules)),
		}
		for _, r := range c.Rules {
			if err := r.Validate(); err != nil {
				return nil, fmt.Errorf("%w: cannot export rule: %v", models.ErrInvalidInput, err)
			}
			xc.Rules = append(xc.Rules, toXMLRule(r))
		}
		doc.Collections = append(doc.Collections, xc)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

func toXMLRule(r models.Rule) xmlRule {
	id := r.ID
	if id == "" {
		id = uuid.NewSHA1(ruleNamespace, []byte(string(r.CollectionType)+"|"+r.IdentityKey())).String()
	}
	xr := xmlRule{
		ID:             id,
		Name:           r.Name,
		Description:    r.Description,
		UserOrGroupSid: models.PrincipalSID(r.TargetPrincipal),
		Action:         string(r.Action),
	}

	switch c := r.Condition.(type) {
	case *models.PublisherCondition:
		xr.XMLName = xml.Name{Local: elemPublisherRule}
		xr.Conditions.Publisher = &xmlPublisherCondition{
			PublisherName: c.PublisherName,
			ProductName:   orWildcard(c.ProductName),
			BinaryName:    orWildcard(c.BinaryName),
			VersionRange: xmlVersionRange{
				LowSection:  orWildcard(c.LowVersion),
				HighSection: orWildcard(c.HighVersion),
			},
		}
	case *models.PathCondition:
		xr.XMLName = xml.Name{Local: elemPathRule}
		xr.Conditions.Path = &xmlPathCondition{Path: c.Path}
	case *models.HashCondition:
		xr.XMLName = xml.Name{Local: elemHashRule}
		fh := xmlFileHash{
			Type:           hashAlgorithm(c.Algorithm),
			Data:           "0x" + models.NormalizeHash(c.Data),
			SourceFileName: c.SourceFileName,
		}
		if c.SourceFileLength > 0 {
			fh.SourceFileLength = strconv.FormatInt(c.SourceFileLength, 10)
		}
		xr.Conditions.Hash = &xmlHashCondition{Hashes: []xmlFileHash{fh}}
	}
	return xr
}

// Unmarshal parses AppLocker XML. Rules whose condition is missing or does
// not match their element come back with a nil Condition so callers can count
// them. Provenance is read from the marker Marshal writes, else external.
func Unmarshal(data []byte) (*models.Policy, error) {
	return Decode(bytes.NewReader(data))
}

// Decode is Unmarshal over a reader.
func Decode(r io.Reader) (*models.Policy, error) {
	var doc xmlPolicy
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse policy XML: %v", models.ErrInvalidInput, err)
	}

	p := models.NewPolicy()
	p.Provenance = models.ProvenanceExternal
	if i := strings.Index(doc.Comment, provenanceMarker); i >= 0 {
		v := strings.Fields(doc.Comment[i+len(provenanceMarker):])
		if len(v) > 0 && models.Provenance(v[0]) == models.ProvenanceArtifact {
			p.Provenance = models.ProvenanceArtifact
		}
	}

	for _, xc := range doc.Collections {
		ct, err := models.ParseCollectionType(xc.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: rule collection type %q", models.ErrInvalidInput, xc.Type)
		}
		if p.Collection(ct) != nil {
			return nil, fmt.Errorf("%w: duplicate %s rule collection", models.ErrInvalidInput, ct)
		}
		mode := models.EnforcementNotConfigured
		if xc.EnforcementMode != "" {
			if mode, err = models.ParseEnforcementMode(xc.EnforcementMode); err != nil {
				return nil, fmt.Errorf("%w: %s enforcement mode %q", models.ErrInvalidInput, ct, xc.EnforcementMode)
			}
		}

		coll := p.Ensure(ct, mode)
		for _, xr := range xc.Rules {
			rule, ok := fromXMLRule(xr, ct)
			if ok {
				coll.Rules = append(coll.Rules, rule)
			}
		}
	}
	return p, nil
}

// fromXMLRule returns false for elements that are not rules.
func fromXMLRule(xr xmlRule, ct models.CollectionType) (models.Rule, bool) {
	r := models.Rule{
		ID:              xr.ID,
		Name:            xr.Name,
		Description:     xr.Description,
		Action:          models.Action(xr.Action),
		CollectionType:  ct,
		TargetPrincipal: models.PrincipalName(xr.UserOrGroupSid),
	}
	if a, err := models.ParseAction(xr.Action); err == nil {
		r.Action = a
	}

	switch xr.XMLName.Local {
	case elemPublisherRule:
		r.Type = models.RuleTypePublisher
		if c := xr.Conditions.Publisher; c != nil {
			r.Condition = &models.PublisherCondition{
				PublisherName: c.PublisherName,
				ProductName:   orWildcard(c.ProductName),
				BinaryName:    orWildcard(c.BinaryName),
				LowVersion:    orWildcard(c.VersionRange.LowSection),
				HighVersion:   orWildcard(c.VersionRange.HighSection),
			}
		}
	case elemPathRule:
		r.Type = models.RuleTypePath
		if c := xr.Conditions.Path; c != nil {
			r.Condition = &models.PathCondition{Path: c.Path}
		}
	case elemHashRule:
		r.Type = models.RuleTypeHash
		if c := xr.Conditions.Hash; c != nil && len(c.Hashes) > 0 {
			fh := c.Hashes[0]
			size, _ := strconv.ParseInt(strings.TrimSpace(fh.SourceFileLength), 10, 64)
			r.Condition = &models.HashCondition{
				Algorithm:        hashAlgorithm(fh.Type),
				Data:             models.NormalizeHash(fh.Data),
				SourceFileName:   fh.SourceFileName,
				SourceFileLength: size,
			}
		}
	default:
		return models.Rule{}, false
	}
	return r, true
}

// Digest identifies an exported document.
func Digest(data []byte) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256(data))
}

// PolicyDigest is Digest of the policy's exported form.
func PolicyDigest(p *models.Policy) (string, error) {
	data, err := Marshal(p)
	if err != nil {
		return "", err
	}
	return Digest(data), nil
}

func orWildcard(s string) string {
	if strings.TrimSpace(s) == "" {
		return models.Wildcard
	}
	return s
}

func hashAlgorithm(s string) string {
	if strings.TrimSpace(s) == "" {
		return "SHA256"
	}
	return strings.ToUpper(s)
}
