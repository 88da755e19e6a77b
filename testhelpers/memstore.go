package testhelpers

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"medkit/internal/models"
	"medkit/internal/repositories"
)

// MemStore is an in-memory repositories.Store. Transactions run one at a
// time against a private copy of the state that is swapped in on commit,
// so a failing unit of work leaves nothing behind.
type MemStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *memState

	failMu   sync.Mutex
	failures map[string]error

	snapshots atomic.Int64
}

type memState struct {
	components   map[string]*models.Component
	kits         map[string]*models.Kit
	bindings     []*models.KitBinding
	usage        []*models.UsageRecord
	distributors map[string]*models.Distributor
	audit        []*models.AuditLog
	serials      map[string]int
	nextBinding  int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		st: &memState{
			components:   map[string]*models.Component{},
			kits:         map[string]*models.Kit{},
			distributors: map[string]*models.Distributor{},
			serials:      map[string]int{},
		},
		failures: map[string]error{},
	}
}

// FailOn makes the named repository operation (for example
// "components.Create") return err until cleared with a nil err.
func (s *MemStore) FailOn(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *MemStore) failure(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.failures[op]
}

func (s *MemStore) Repos() repositories.Repos {
	return s.reposFor(&liveView{s: s})
}

func (s *MemStore) InTx(ctx context.Context, fn func(r repositories.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(s.reposFor(&txView{st: work})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

// InSnapshot runs fn against a private copy of the state that is thrown
// away afterwards. Any write fails the call, as in a read-only transaction.
func (s *MemStore) InSnapshot(ctx context.Context, fn func(r repositories.Repos) error) error {
	s.snapshots.Add(1)

	s.mu.RLock()
	view := &readOnlyView{st: s.st.clone()}
	s.mu.RUnlock()

	if err := fn(s.reposFor(view)); err != nil {
		return err
	}
	if view.wrote {
		return errReadOnly
	}
	return ctx.Err()
}

// Snapshots reports how many times InSnapshot ran.
func (s *MemStore) Snapshots() int64 {
	return s.snapshots.Load()
}

var errReadOnly = errors.New("memstore: write in read-only transaction")

// view gives repositories access to a state: the live one under the read
// or write lock, or a transaction's private copy.
type view interface {
	read(fn func(st *memState))
	write(fn func(st *memState))
}

type liveView struct{ s *MemStore }

func (v *liveView) read(fn func(st *memState)) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	fn(v.s.st)
}

func (v *liveView) write(fn func(st *memState)) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	fn(v.s.st)
}

type txView struct{ st *memState }

func (v *txView) read(fn func(st *memState))  { fn(v.st) }
func (v *txView) write(fn func(st *memState)) { fn(v.st) }

type readOnlyView struct {
	st    *memState
	wrote bool
}

func (v *readOnlyView) read(fn func(st *memState)) { fn(v.st) }
func (v *readOnlyView) write(fn func(st *memState)) {
	v.wrote = true
	fn(v.st)
}

func (s *MemStore) reposFor(v view) repositories.Repos {
	return repositories.Repos{
		Components:   &memComponents{s: s, v: v},
		Kits:         &memKits{s: s, v: v},
		Bindings:     &memBindings{s: s, v: v},
		Usage:        &memUsage{s: s, v: v},
		Distributors: &memDistributors{s: s, v: v},
		Audit:        &memAudit{s: s, v: v},
	}
}

func (st *memState) clone() *memState {
	out := &memState{
		components:   make(map[string]*models.Component, len(st.components)),
		kits:         make(map[string]*models.Kit, len(st.kits)),
		distributors: make(map[string]*models.Distributor, len(st.distributors)),
		serials:      make(map[string]int, len(st.serials)),
		nextBinding:  st.nextBinding,
	}
	for k, c := range st.components {
		out.components[k] = copyComponent(c)
	}
	for k, kit := range st.kits {
		out.kits[k] = copyKit(kit)
	}
	for k, d := range st.distributors {
		cp := *d
		out.distributors[k] = &cp
	}
	for k, n := range st.serials {
		out.serials[k] = n
	}
	out.bindings = lo.Map(st.bindings, func(b *models.KitBinding, _ int) *models.KitBinding { return copyBinding(b) })
	out.usage = lo.Map(st.usage, func(u *models.UsageRecord, _ int) *models.UsageRecord { return copyUsage(u) })
	out.audit = slices.Clone(st.audit)
	return out
}

func ptrCopy[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyComponent(c *models.Component) *models.Component {
	cp := *c
	cp.KitID = ptrCopy(c.KitID)
	cp.DiscardedAt = ptrCopy(c.DiscardedAt)
	return &cp
}

func copyKit(k *models.Kit) *models.Kit {
	cp := *k
	cp.Components = nil
	cp.DistributorID = ptrCopy(k.DistributorID)
	cp.DistributorName = ptrCopy(k.DistributorName)
	cp.DispenseDate = ptrCopy(k.DispenseDate)
	return &cp
}

func copyBinding(b *models.KitBinding) *models.KitBinding {
	cp := *b
	cp.UnboundAt = ptrCopy(b.UnboundAt)
	return &cp
}

func copyUsage(u *models.UsageRecord) *models.UsageRecord {
	cp := *u
	cp.EndTime = ptrCopy(u.EndTime)
	return &cp
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func sortedCounts(m map[string]int) []models.MonthlyCount {
	out := make([]models.MonthlyCount, 0, len(m))
	for month, n := range m {
		out = append(out, models.MonthlyCount{Month: month, Count: n})
	}
	slices.SortFunc(out, func(a, b models.MonthlyCount) int { return strings.Compare(a.Month, b.Month) })
	return out
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type memComponents struct {
	s *MemStore
	v view
}

func (r *memComponents) Create(ctx context.Context, c *models.Component) error {
	if err := r.s.failure("components.Create"); err != nil {
		return err
	}
	var err error
	r.v.write(func(st *memState) {
		if _, ok := st.components[c.ID]; ok {
			err = &models.ValidationError{Issues: []models.ValidationIssue{{ID: c.ID, Field: "id", Message: "component already exists"}}}
			return
		}
		st.components[c.ID] = copyComponent(c)
	})
	return err
}

func (r *memComponents) GetByID(ctx context.Context, id string) (*models.Component, error) {
	var out *models.Component
	r.v.read(func(st *memState) {
		if c, ok := st.components[id]; ok {
			out = copyComponent(c)
		}
	})
	if out == nil {
		return nil, models.ErrComponentNotFound
	}
	return out, nil
}

func (r *memComponents) GetForUpdate(ctx context.Context, ids []string) ([]*models.Component, error) {
	if err := r.s.failure("components.GetForUpdate"); err != nil {
		return nil, err
	}
	var out []*models.Component
	r.v.read(func(st *memState) {
		for _, id := range lo.Uniq(ids) {
			if c, ok := st.components[id]; ok {
				out = append(out, copyComponent(c))
			}
		}
	})
	slices.SortFunc(out, func(a, b *models.Component) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *memComponents) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	var out []string
	r.v.read(func(st *memState) {
		for _, id := range ids {
			if _, ok := st.components[id]; ok {
				out = append(out, id)
			}
		}
	})
	return out, nil
}

func (r *memComponents) UpdateState(ctx context.Context, c *models.Component) error {
	if err := r.s.failure("components.UpdateState"); err != nil {
		return err
	}
	var err error
	r.v.write(func(st *memState) {
		cur, ok := st.components[c.ID]
		if !ok {
			err = models.ErrComponentNotFound
			return
		}
		cur.Status = c.Status
		cur.KitID = ptrCopy(c.KitID)
		cur.DiscardedAt = ptrCopy(c.DiscardedAt)
		cur.UpdatedAt = c.UpdatedAt
	})
	return err
}

func (r *memComponents) List(ctx context.Context, f models.ComponentFilter) ([]*models.Component, error) {
	var out []*models.Component
	r.v.read(func(st *memState) {
		for _, c := range st.components {
			if f.Type != nil && c.Type != *f.Type {
				continue
			}
			if f.Status != nil && c.Status != *f.Status {
				continue
			}
			if f.BatchNumber != "" && c.BatchNumber != f.BatchNumber {
				continue
			}
			if f.KitID != "" && (c.KitID == nil || *c.KitID != f.KitID) {
				continue
			}
			out = append(out, copyComponent(c))
		}
	})
	slices.SortFunc(out, func(a, b *models.Component) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return page(out, f.Limit, f.Offset), nil
}

func (r *memComponents) CountScrappedByMonth(ctx context.Context, from, to time.Time) ([]models.MonthlyCount, error) {
	if err := r.s.failure("components.CountScrappedByMonth"); err != nil {
		return nil, err
	}
	counts := map[string]int{}
	r.v.read(func(st *memState) {
		for _, c := range st.components {
			if c.DiscardedAt != nil && inWindow(*c.DiscardedAt, from, to) {
				counts[monthKey(*c.DiscardedAt)]++
			}
		}
	})
	return sortedCounts(counts), nil
}

type memKits struct {
	s *MemStore
	v view
}

func (r *memKits) Create(ctx context.Context, kit *models.Kit) error {
	if err := r.s.failure("kits.Create"); err != nil {
		return err
	}
	var err error
	r.v.write(func(st *memState) {
		if _, ok := st.kits[kit.ID]; ok {
			err = &models.ValidationError{Issues: []models.ValidationIssue{{ID: kit.ID, Field: "kit_id", Message: "kit already exists"}}}
			return
		}
		st.kits[kit.ID] = copyKit(kit)
	})
	return err
}

func (r *memKits) GetByID(ctx context.Context, id string) (*models.Kit, error) {
	var out *models.Kit
	r.v.read(func(st *memState) {
		if k, ok := st.kits[id]; ok {
			out = copyKit(k)
		}
	})
	if out == nil {
		return nil, models.ErrKitNotFound
	}
	return out, nil
}

func (r *memKits) GetForUpdate(ctx context.Context, ids []string) ([]*models.Kit, error) {
	if err := r.s.failure("kits.GetForUpdate"); err != nil {
		return nil, err
	}
	var out []*models.Kit
	r.v.read(func(st *memState) {
		for _, id := range lo.Uniq(ids) {
			if k, ok := st.kits[id]; ok {
				out = append(out, copyKit(k))
			}
		}
	})
	slices.SortFunc(out, func(a, b *models.Kit) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *memKits) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	r.v.read(func(st *memState) { _, ok = st.kits[id] })
	return ok, nil
}

func (r *memKits) Update(ctx context.Context, kit *models.Kit) error {
	if err := r.s.failure("kits.Update"); err != nil {
		return err
	}
	var err error
	r.v.write(func(st *memState) {
		if _, ok := st.kits[kit.ID]; !ok {
			err = models.ErrKitNotFound
			return
		}
		cp := copyKit(kit)
		cp.CreatedAt = st.kits[kit.ID].CreatedAt
		st.kits[kit.ID] = cp
	})
	return err
}

func (r *memKits) List(ctx context.Context, f models.KitFilter) ([]*models.Kit, error) {
	var out []*models.Kit
	r.v.read(func(st *memState) {
		for _, k := range st.kits {
			if f.Status != nil && k.Status != *f.Status {
				continue
			}
			if f.DistributorID != "" && (k.DistributorID == nil || *k.DistributorID != f.DistributorID) {
				continue
			}
			if f.CreatedFrom != nil && k.CreatedAt.Before(*f.CreatedFrom) {
				continue
			}
			if f.CreatedTo != nil && !k.CreatedAt.Before(*f.CreatedTo) {
				continue
			}
			out = append(out, copyKit(k))
		}
	})
	slices.SortFunc(out, func(a, b *models.Kit) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return page(out, f.Limit, f.Offset), nil
}

func (r *memKits) NextSerial(ctx context.Context, day time.Time) (int, error) {
	var n int
	r.v.write(func(st *memState) {
		key := day.UTC().Format(time.DateOnly)
		st.serials[key]++
		n = st.serials[key]
	})
	return n, nil
}

type memBindings struct {
	s *MemStore
	v view
}

func (r *memBindings) Create(ctx context.Context, b *models.KitBinding) error {
	if err := r.s.failure("bindings.Create"); err != nil {
		return err
	}
	r.v.write(func(st *memState) {
		st.nextBinding++
		b.ID = st.nextBinding
		st.bindings = append(st.bindings, copyBinding(b))
	})
	return nil
}

func (r *memBindings) ListByKit(ctx context.Context, kitID string) ([]*models.KitBinding, error) {
	var out []*models.KitBinding
	r.v.read(func(st *memState) {
		for _, b := range st.bindings {
			if b.KitID == kitID {
				out = append(out, copyBinding(b))
			}
		}
	})
	return out, nil
}

func (r *memBindings) CloseByKit(ctx context.Context, kitID string, at time.Time) (int64, error) {
	if err := r.s.failure("bindings.CloseByKit"); err != nil {
		return 0, err
	}
	var n int64
	r.v.write(func(st *memState) {
		for _, b := range st.bindings {
			if b.KitID == kitID && b.UnboundAt == nil {
				b.UnboundAt = ptrCopy(&at)
				n++
			}
		}
	})
	return n, nil
}

func (r *memBindings) ListAll(ctx context.Context) ([]*models.KitBinding, error) {
	var out []*models.KitBinding
	r.v.read(func(st *memState) {
		out = lo.Map(st.bindings, func(b *models.KitBinding, _ int) *models.KitBinding { return copyBinding(b) })
	})
	return out, nil
}

type memUsage struct {
	s *MemStore
	v view
}

func (r *memUsage) Create(ctx context.Context, u *models.UsageRecord) error {
	if err := r.s.failure("usage.Create"); err != nil {
		return err
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	var err error
	r.v.write(func(st *memState) {
		for _, existing := range st.usage {
			if existing.KitID == u.KitID && existing.EndTime == nil {
				err = &models.InvalidKitStateError{Kits: []models.KitStateIssue{{KitID: u.KitID, Reason: "open usage record exists"}}}
				return
			}
		}
		st.usage = append(st.usage, copyUsage(u))
	})
	return err
}

func (r *memUsage) ListOpenByKits(ctx context.Context, kitIDs []string) ([]*models.UsageRecord, error) {
	var out []*models.UsageRecord
	r.v.read(func(st *memState) {
		for _, u := range st.usage {
			if u.EndTime == nil && slices.Contains(kitIDs, u.KitID) {
				out = append(out, copyUsage(u))
			}
		}
	})
	return out, nil
}

func (r *memUsage) Close(ctx context.Context, id uuid.UUID, end time.Time) error {
	if err := r.s.failure("usage.Close"); err != nil {
		return err
	}
	r.v.write(func(st *memState) {
		for _, u := range st.usage {
			if u.ID == id && u.EndTime == nil {
				u.EndTime = ptrCopy(&end)
			}
		}
	})
	return nil
}

func (r *memUsage) HistoryByComponent(ctx context.Context, componentID string) ([]*models.UsageRecord, error) {
	var out []*models.UsageRecord
	r.v.read(func(st *memState) {
		kits := map[string]bool{}
		for _, b := range st.bindings {
			if b.ComponentID == componentID {
				kits[b.KitID] = true
			}
		}
		for _, u := range st.usage {
			if !kits[u.KitID] {
				continue
			}
			cp := copyUsage(u)
			if d, ok := st.distributors[u.DistributorID]; ok {
				cp.DistributorName = d.Name
			}
			out = append(out, cp)
		}
	})
	slices.SortStableFunc(out, func(a, b *models.UsageRecord) int { return a.StartTime.Compare(b.StartTime) })
	return out, nil
}

func (r *memUsage) CountUsedComponentsByMonth(ctx context.Context, from, to time.Time) ([]models.MonthlyCount, error) {
	if err := r.s.failure("usage.CountUsedComponentsByMonth"); err != nil {
		return nil, err
	}
	counts := map[string]int{}
	r.v.read(func(st *memState) {
		for _, u := range st.usage {
			if u.EndTime == nil || !inWindow(*u.EndTime, from, to) {
				continue
			}
			for _, b := range st.bindings {
				if b.KitID == u.KitID {
					counts[monthKey(*u.EndTime)]++
				}
			}
		}
	})
	return sortedCounts(counts), nil
}

func (r *memUsage) ListAll(ctx context.Context) ([]*models.UsageRecord, error) {
	if err := r.s.failure("usage.ListAll"); err != nil {
		return nil, err
	}
	var out []*models.UsageRecord
	r.v.read(func(st *memState) {
		out = lo.Map(st.usage, func(u *models.UsageRecord, _ int) *models.UsageRecord { return copyUsage(u) })
	})
	return out, nil
}

type memDistributors struct {
	s *MemStore
	v view
}

func (r *memDistributors) Create(ctx context.Context, d *models.Distributor) error {
	var err error
	r.v.write(func(st *memState) {
		if _, ok := st.distributors[d.ID]; ok {
			err = &models.ValidationError{Issues: []models.ValidationIssue{{ID: d.ID, Field: "id", Message: "distributor already exists"}}}
			return
		}
		cp := *d
		st.distributors[d.ID] = &cp
	})
	return err
}

func (r *memDistributors) GetByID(ctx context.Context, id string) (*models.Distributor, error) {
	var out *models.Distributor
	r.v.read(func(st *memState) {
		if d, ok := st.distributors[id]; ok {
			cp := *d
			out = &cp
		}
	})
	if out == nil {
		return nil, models.ErrDistributorNotFound
	}
	return out, nil
}

func (r *memDistributors) Update(ctx context.Context, d *models.Distributor) error {
	var err error
	r.v.write(func(st *memState) {
		cur, ok := st.distributors[d.ID]
		if !ok {
			err = models.ErrDistributorNotFound
			return
		}
		cur.Name, cur.Email, cur.Tel = d.Name, d.Email, d.Tel
		cur.Address, cur.City, cur.ContactPerson = d.Address, d.City, d.ContactPerson
		cur.UpdatedAt = d.UpdatedAt
	})
	return err
}

func (r *memDistributors) SetStatus(ctx context.Context, id string, status models.DistributorStatus) error {
	var err error
	r.v.write(func(st *memState) {
		cur, ok := st.distributors[id]
		if !ok {
			err = models.ErrDistributorNotFound
			return
		}
		cur.Status = status
	})
	return err
}

func (r *memDistributors) List(ctx context.Context, status *models.DistributorStatus, limit, offset int) ([]*models.Distributor, error) {
	var out []*models.Distributor
	r.v.read(func(st *memState) {
		for _, d := range st.distributors {
			if status != nil && d.Status != *status {
				continue
			}
			cp := *d
			out = append(out, &cp)
		}
	})
	slices.SortFunc(out, func(a, b *models.Distributor) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.ID, b.ID))
	})
	return page(out, limit, offset), nil
}

type memAudit struct {
	s *MemStore
	v view
}

func (r *memAudit) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	r.v.write(func(st *memState) { st.audit = append(st.audit, &cp) })
	return nil
}

func (r *memAudit) List(ctx context.Context, f *models.AuditLogFilters) ([]*models.AuditLog, error) {
	if f == nil {
		f = &models.AuditLogFilters{}
	}
	var out []*models.AuditLog
	r.v.read(func(st *memState) {
		for i := len(st.audit) - 1; i >= 0; i-- {
			e := st.audit[i]
			if f.EntityType != nil && e.EntityType != *f.EntityType {
				continue
			}
			if f.EntityID != nil && e.EntityID != *f.EntityID {
				continue
			}
			if f.Action != nil && e.Action != *f.Action {
				continue
			}
			if f.ChangedBy != nil && (e.ChangedBy == nil || *e.ChangedBy != *f.ChangedBy) {
				continue
			}
			cp := *e
			out = append(out, &cp)
		}
	})
	return page(out, f.Limit, f.Offset), nil
}
