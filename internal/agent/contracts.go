package agent

import (
	"context"
	"log/slog"

	"github.com/roach88/fieldsync/internal/model"
)

// ContractList is the employee's contract snapshot and where it came from.
type ContractList struct {
	model.ContractSnapshot
	Fresh bool   `json:"fresh"`
	Stale bool   `json:"stale"`
	Error string `json:"error,omitempty"`
}

// RefreshContracts returns the employee's contract list. A snapshot refreshed
// today is served from the store unless force is set; otherwise the list is
// fetched, merged with local check-in state and saved. When the fetch fails
// the cached snapshot is returned with Error set.
func (a *Agent) RefreshContracts(ctx context.Context, force bool) (ContractList, error) {
	emp, err := a.employee(ctx)
	if err != nil {
		return ContractList{}, err
	}
	st := a.deps.Store
	today := a.today()

	cached, found, err := st.Contracts(ctx, emp)
	if err != nil {
		return ContractList{}, err
	}
	if found && !force && !cached.IsStale(today) {
		return ContractList{ContractSnapshot: cached}, nil
	}

	res := a.deps.Remote.FetchContracts(ctx, emp)
	if !res.IsOk() {
		slog.Warn("contract refresh failed, using cached list", "employee", emp, "error", res.Err())
		return ContractList{
			ContractSnapshot: cached,
			Stale:            !found || cached.IsStale(today),
			Error:            res.Err().Error(),
		}, nil
	}

	snap := model.ContractSnapshot{
		EmployeeID:  emp,
		Contracts:   res.Value,
		RefreshedAt: a.now(),
	}
	if err := a.mergeCheckins(ctx, &snap, cached, today); err != nil {
		return ContractList{}, err
	}
	if err := st.SaveContracts(ctx, snap); err != nil {
		return ContractList{}, err
	}
	slog.Info("contracts refreshed", "employee", emp, "count", len(snap.Contracts))
	return ContractList{ContractSnapshot: snap, Fresh: true}, nil
}

// mergeCheckins keeps check-ins the server does not know about yet: ones
// flagged in the previous snapshot today and ones recorded locally today.
func (a *Agent) mergeCheckins(ctx context.Context, snap *model.ContractSnapshot, prev model.ContractSnapshot, today string) error {
	before := make(map[string]model.Contract, len(prev.Contracts))
	for _, c := range prev.Contracts {
		if c.CheckedIn && model.CivilDate(c.CheckinDate) == today {
			before[c.LeaseNo] = c
		}
	}
	for i := range snap.Contracts {
		c := &snap.Contracts[i]
		if c.CheckedIn && model.CivilDate(c.CheckinDate) == today {
			continue
		}
		if old, ok := before[c.LeaseNo]; ok {
			c.CheckedIn = true
			c.CheckinDate = old.CheckinDate
			if c.Comment == "" {
				c.Comment = old.Comment
			}
			continue
		}
		local, err := a.deps.Store.HasCheckinOn(ctx, c.LeaseNo, snap.EmployeeID, today)
		if err != nil {
			return err
		}
		if local {
			c.CheckedIn = true
			if c.CheckinDate == "" || model.CivilDate(c.CheckinDate) != today {
				c.CheckinDate = today
			}
		}
	}
	return nil
}
