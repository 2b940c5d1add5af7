package contact

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ServiceOptions struct {
	Directory Directory
	Source    SnapshotSource
	Log       InteractionLog
	Notifier  Notifier
	Logger    *zap.Logger
	Now       func() time.Time
}

// Service ties the components together: validation, the synchronization
// cache, the directory adapter, the workflow engine, and the conflict
// resolver. It owns the write path; reads go through the snapshot source.
type Service struct {
	dir      Directory
	source   SnapshotSource
	log      InteractionLog
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		dir:      opts.Directory,
		source:   opts.Source,
		log:      opts.Log,
		notifier: opts.Notifier,
		logger:   logger,
		now:      now,
	}
}

type ListQuery struct {
	Criteria   Criteria
	Search     string
	SortKey    SortKey
	Descending bool
	Refresh    bool
}

type ListResult struct {
	Contacts    []Contact
	RefreshedAt time.Time
	Stale       bool
	Warnings    []string
}

// UpdateResult carries the committed contact plus any fields where a newer
// remote value overrode the caller's stale edit.
type UpdateResult struct {
	Contact    Contact
	Overridden []string
}

func (s *Service) CreateContact(ctx context.Context, in CreateInput) (Contact, error) {
	c, err := ValidateCreate(in, s.now())
	if err != nil {
		return Contact{}, err
	}
	created, err := s.dir.Create(ctx, c)
	if err != nil {
		return Contact{}, err
	}
	s.source.Invalidate()
	s.publish(ChangeCreated, created.ID)
	s.logger.Info("contact created", zap.String("contact_id", created.ID))
	return created, nil
}

func (s *Service) GetContact(ctx context.Context, id string) (Contact, error) {
	return s.source.GetOne(ctx, id)
}

func (s *Service) ListContacts(ctx context.Context, q ListQuery) (ListResult, error) {
	snap, err := s.source.GetAll(ctx, q.Refresh)
	if err != nil {
		return ListResult{}, err
	}
	today := s.now()
	contacts := Filter(snap.Contacts, q.Criteria, today)
	contacts = Search(contacts, q.Search)
	contacts = Sort(contacts, q.SortKey, q.Descending, today)
	return ListResult{
		Contacts:    contacts,
		RefreshedAt: snap.RefreshedAt,
		Stale:       snap.Stale,
		Warnings:    snap.Warnings,
	}, nil
}

// UpdateContact commits a partial update. The patch is resolved against the
// directory's current state before the write so concurrent remote edits to
// other fields are never clobbered; divergent fields come back in
// UpdateResult.Overridden.
func (s *Service) UpdateContact(ctx context.Context, id string, p Patch) (UpdateResult, error) {
	cached, err := s.source.GetOne(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	remote, err := s.dir.FetchOne(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}

	res := Resolve(p, cached, remote)
	now := s.now()
	updated, statusChanged, err := ApplyPatch(remote, res.Patch, now)
	if err != nil {
		return UpdateResult{}, err
	}
	if len(res.Overridden) > 0 {
		s.logger.Warn("remote edits won over stale local patch",
			zap.String("contact_id", id),
			zap.Strings("fields", res.Overridden))
	}
	if len(res.Patch.SetFields()) == 0 {
		// Everything the caller wanted was either overridden or already
		// in place remotely; there is nothing to write.
		return UpdateResult{Contact: remote, Overridden: res.Overridden}, nil
	}

	outbound := res.Patch
	if statusChanged {
		stamp := updated.StatusChangedAt
		outbound.StatusChangedAt = &stamp
	}
	committed, err := s.dir.Update(ctx, id, outbound)
	if err != nil {
		return UpdateResult{}, err
	}
	s.source.Invalidate()
	s.publish(ChangeUpdated, id)
	return UpdateResult{Contact: committed, Overridden: res.Overridden}, nil
}

func (s *Service) ArchiveContact(ctx context.Context, id, reason string) error {
	if err := s.dir.Archive(ctx, id, reason, s.now()); err != nil {
		return err
	}
	s.source.Invalidate()
	s.publish(ChangeArchived, id)
	s.logger.Info("contact archived", zap.String("contact_id", id), zap.String("reason", reason))
	return nil
}

// OnOutreachSent is the hook for the messaging collaborators: an outbound
// message went to the contact over the given channel.
func (s *Service) OnOutreachSent(ctx context.Context, id, channel string) (Contact, error) {
	if channel == "" {
		return Contact{}, &ValidationError{Field: "channel", Reason: "channel is required"}
	}
	now := s.now()
	committed, err := s.applyEvent(ctx, id, func(c Contact) Contact {
		return ApplyOutreachSent(c, now)
	})
	if err != nil {
		return Contact{}, err
	}
	s.record(ctx, Interaction{
		ContactID:  id,
		Kind:       InteractionMessage,
		Direction:  DirectionOutbound,
		Channel:    channel,
		OccurredAt: now,
	})
	return committed, nil
}

// OnMeetingScheduled forces the contact to scheduled and appends an opaque
// meeting-history record.
func (s *Service) OnMeetingScheduled(ctx context.Context, id string, when time.Time, payload string) (Contact, error) {
	now := s.now()
	committed, err := s.applyEvent(ctx, id, func(c Contact) Contact {
		return ApplyMeetingScheduled(c, when, now)
	})
	if err != nil {
		return Contact{}, err
	}
	occurred := when
	if occurred.IsZero() {
		occurred = now
	}
	s.record(ctx, Interaction{
		ContactID:  id,
		Kind:       InteractionMeeting,
		Channel:    "meeting",
		Payload:    payload,
		OccurredAt: occurred,
	})
	return committed, nil
}

func (s *Service) OnCallLogged(ctx context.Context, id string) (Contact, error) {
	now := s.now()
	committed, err := s.applyEvent(ctx, id, func(c Contact) Contact {
		return ApplyCallLogged(c, now)
	})
	if err != nil {
		return Contact{}, err
	}
	s.record(ctx, Interaction{
		ContactID:  id,
		Kind:       InteractionCall,
		Channel:    "call",
		OccurredAt: now,
	})
	return committed, nil
}

func (s *Service) ListInteractions(ctx context.Context, contactID string) ([]Interaction, error) {
	if s.log == nil {
		return nil, nil
	}
	return s.log.ListByContact(ctx, contactID)
}

func (s *Service) Health(ctx context.Context) error {
	return s.dir.Ping(ctx)
}

// applyEvent fetches the latest remote state, applies a workflow mutation,
// and writes back only the fields the mutation touched.
func (s *Service) applyEvent(ctx context.Context, id string, apply func(Contact) Contact) (Contact, error) {
	remote, err := s.dir.FetchOne(ctx, id)
	if err != nil {
		return Contact{}, err
	}
	next := apply(remote)
	outbound := diffForEvent(remote, next)
	if outbound.Empty() {
		return remote, nil
	}
	committed, err := s.dir.Update(ctx, id, outbound)
	if err != nil {
		return Contact{}, err
	}
	s.source.Invalidate()
	s.publish(ChangeUpdated, id)
	return committed, nil
}

// diffForEvent builds the partial update for a workflow side effect. Only
// the fields events may touch are considered.
func diffForEvent(before, after Contact) Patch {
	var p Patch
	if after.Status != before.Status {
		status := after.Status
		stamp := after.StatusChangedAt
		p.Status = &status
		p.StatusChangedAt = &stamp
	}
	if !after.LastContactDate.Equal(before.LastContactDate) {
		d := after.LastContactDate
		p.LastContactDate = &d
	}
	if !after.NextFollowupDate.Equal(before.NextFollowupDate) {
		d := after.NextFollowupDate
		p.NextFollowupDate = &d
	}
	if after.ContactCount != before.ContactCount {
		n := after.ContactCount
		p.ContactCount = &n
	}
	if after.CallCount != before.CallCount {
		n := after.CallCount
		p.CallCount = &n
	}
	if after.FollowupCount != before.FollowupCount {
		n := after.FollowupCount
		p.FollowupCount = &n
	}
	return p
}

func (s *Service) record(ctx context.Context, it Interaction) {
	if s.log == nil {
		return
	}
	if _, err := s.log.Append(ctx, it); err != nil {
		// History is best effort; the directory write already landed.
		s.logger.Warn("failed to record interaction",
			zap.String("contact_id", it.ContactID),
			zap.String("kind", string(it.Kind)),
			zap.Error(err))
	}
}

func (s *Service) publish(t ChangeType, contactID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ChangeEvent{
		EventID:   uuid.NewString(),
		Type:      t,
		ContactID: contactID,
		Timestamp: s.now().Format(time.RFC3339),
	})
}
