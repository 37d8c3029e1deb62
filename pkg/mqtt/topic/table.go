package topic

import (
	"fmt"
	"path"
	"strings"
)

// Topic names shared between the device and the services publishing to it.
// Changing these values breaks compatibility with deployed devices.
const (
	// Tram carries the next tram departure status record.
	Tram = "villamos"

	// Metro carries the next metro departure status record.
	Metro = "metro"

	// OTAData carries firmware image chunks. Continuation fragments arrive
	// without a topic.
	OTAData = "tramcast/ota/data"

	// OTAConfirm marks the running image valid when the payload is ConfirmToken.
	OTAConfirm = "tramcast/ota/confirm"

	// Rollback reverts to the previous image and reboots, regardless of payload.
	Rollback = "tramcast/rollback"

	// OTAResult receives the device's readiness notice after every connect.
	OTAResult = "tramcast/ota/result"

	// ConfirmToken is the exact payload accepted on OTAConfirm and the
	// readiness notice published on OTAResult.
	ConfirmToken = "success"
)

// Table is the fixed topic set of one device, optionally placed under a
// common root namespace.
type Table struct {
	Tram       string
	Metro      string
	OTAData    string
	OTAConfirm string
	Rollback   string
	OTAResult  string
}

// NewTable builds the topic table under root. An empty root keeps the bare names.
func NewTable(root string) (*Table, error) {
	root = strings.Trim(root, "/")
	if strings.ContainsAny(root, Wildcard+MultiWildcard) {
		return nil, fmt.Errorf("topic root %q must not contain wildcards", root)
	}

	build := func(name string) string {
		if root == "" {
			return name
		}
		return path.Join(root, name)
	}

	return &Table{
		Tram:       build(Tram),
		Metro:      build(Metro),
		OTAData:    build(OTAData),
		OTAConfirm: build(OTAConfirm),
		Rollback:   build(Rollback),
		OTAResult:  build(OTAResult),
	}, nil
}

// Subscriptions returns the topics subscribed on every connect, status
// topics first.
func (t *Table) Subscriptions() []string {
	return []string{t.Tram, t.Metro, t.OTAData, t.OTAConfirm, t.Rollback}
}

// StatusTopics returns the topics that carry status records.
func (t *Table) StatusTopics() []string {
	return []string{t.Tram, t.Metro}
}
