package supply

import (
	"fmt"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
)

const (
	defaultUnit              = "units"
	defaultCriticalThreshold = 10
)

// StockMovement is one ledger change applied by a resolution
type StockMovement struct {
	StockID    string `json:"stockId"`
	HospitalID string `json:"hospitalId"`
	Item       string `json:"item"`
	Units      int    `json:"units"`
	Quantity   int    `json:"quantity"`
	Created    bool   `json:"created,omitempty"`
}

// StockInsufficientWarning accompanies a debit that could not remove the
// full requested quantity. StockID is empty when no provider line matched.
type StockInsufficientWarning struct {
	RequestID  string `json:"requestId"`
	HospitalID string `json:"hospitalId"`
	StockID    string `json:"stockId,omitempty"`
	Item       string `json:"item"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
}

func (w StockInsufficientWarning) String() string {
	if w.StockID == "" {
		return fmt.Sprintf("no stock line for %q at %s, debit of %d skipped", w.Item, w.HospitalID, w.Requested)
	}
	return fmt.Sprintf("%s at %s had %d of %d requested, clamped to 0", w.Item, w.HospitalID, w.Available, w.Requested)
}

// lineTemplate carries provider attributes into a newly created credit line
type lineTemplate struct {
	category mesh.SupplyCategory
	unit     string
	tags     []mesh.ResourceType
}

// debit removes the request's quantity from the matching line at hospitalID
func debit(snap *mesh.Snapshot, req *mesh.SupplyRequest, hospitalID string) (*StockMovement, *lineTemplate, *StockInsufficientWarning) {
	line := mesh.MatchStock(snap.StockAt(hospitalID), req.ItemName, req.ResourceTypes)
	if line == nil {
		return nil, nil, &StockInsufficientWarning{
			RequestID:  req.ID,
			HospitalID: hospitalID,
			Item:       req.ItemName,
			Requested:  req.Quantity,
		}
	}

	available := line.Quantity
	removed := line.Debit(req.Quantity)
	move := &StockMovement{
		StockID:    line.ID,
		HospitalID: hospitalID,
		Item:       line.Item,
		Units:      removed,
		Quantity:   line.Quantity,
	}
	tmpl := &lineTemplate{category: line.Category, unit: line.Unit, tags: append([]mesh.ResourceType(nil), line.Tags...)}

	var warn *StockInsufficientWarning
	if removed < req.Quantity {
		warn = &StockInsufficientWarning{
			RequestID:  req.ID,
			HospitalID: hospitalID,
			StockID:    line.ID,
			Item:       line.Item,
			Requested:  req.Quantity,
			Available:  available,
		}
	}
	return move, tmpl, warn
}

// credit adds the request's quantity to the requester's matching line,
// creating the line when none matches.
func credit(snap *mesh.Snapshot, req *mesh.SupplyRequest, tmpl *lineTemplate) *StockMovement {
	line := mesh.MatchStock(snap.StockAt(req.HospitalID), req.ItemName, req.ResourceTypes)
	created := false
	if line == nil {
		line = snap.AddStock(newLine(req, tmpl))
		created = true
	} else {
		line.Credit(req.Quantity)
	}
	return &StockMovement{
		StockID:    line.ID,
		HospitalID: req.HospitalID,
		Item:       line.Item,
		Units:      req.Quantity,
		Quantity:   line.Quantity,
		Created:    created,
	}
}

func newLine(req *mesh.SupplyRequest, tmpl *lineTemplate) mesh.SupplyStock {
	line := mesh.SupplyStock{
		ID:                mesh.NewID("STK"),
		HospitalID:        req.HospitalID,
		Item:              req.ItemName,
		Category:          mesh.CategoryTools,
		Quantity:          req.Quantity,
		Unit:              defaultUnit,
		CriticalThreshold: defaultCriticalThreshold,
		Tags:              append([]mesh.ResourceType(nil), req.ResourceTypes...),
	}
	if tmpl != nil {
		if tmpl.category != "" {
			line.Category = tmpl.category
		}
		if tmpl.unit != "" {
			line.Unit = tmpl.unit
		}
		if len(line.Tags) == 0 {
			line.Tags = tmpl.tags
		}
	}
	return line
}
