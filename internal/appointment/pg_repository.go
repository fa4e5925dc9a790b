package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// activeAppointmentCond is the single SQL form of Appointment.IsActive. It expects
// the appointments table aliased as a and HoldCutoff(now) bound to $2.
const activeAppointmentCond = `(a.confirmed OR a.reservation_time >= $2)`

const (
	slotColumns        = `s.id, s.provider_id, s.start_time, s.end_time, s.created_at`
	appointmentColumns = `a.id, a.slot_id, a.client_id, a.reservation_time, a.confirmed, a.confirmed_at`
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

type pgTx struct {
	tx pgx.Tx
}

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.ProviderID, &s.StartTime, &s.EndTime, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	normalizeSlot(&s)
	return &s, nil
}

func normalizeSlot(s *Slot) {
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var confirmedAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.ClientID,
		&a.ReservationTime,
		&a.Confirmed,
		&confirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ReservationTime = a.ReservationTime.UTC()
	if confirmedAt != nil {
		t := confirmedAt.UTC()
		a.ConfirmedAt = &t
	}
	return &a, nil
}

func scanSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func getProvider(ctx context.Context, q querier, id uuid.UUID) (*Provider, error) {
	row := q.QueryRow(ctx, `
		SELECT id, name, created_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func getAppointment(ctx context.Context, q querier, id uuid.UUID) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
	`, id)
	return scanAppointment(row)
}

// Repository methods

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return getProvider(ctx, r.pool, id)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var confirmedAt *time.Time

	err := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`,
		       `+slotColumns+`,
		       c.id, c.name, c.created_at
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		JOIN clients c ON c.id = a.client_id
		WHERE a.id = $1
	`, id).Scan(
		&d.ID,
		&d.SlotID,
		&d.ClientID,
		&d.ReservationTime,
		&d.Confirmed,
		&confirmedAt,
		&d.Slot.ID,
		&d.Slot.ProviderID,
		&d.Slot.StartTime,
		&d.Slot.EndTime,
		&d.Slot.CreatedAt,
		&d.Client.ID,
		&d.Client.Name,
		&d.Client.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("get appointment detail: %w", err)
	}

	d.ReservationTime = d.ReservationTime.UTC()
	if confirmedAt != nil {
		t := confirmedAt.UTC()
		d.ConfirmedAt = &t
	}
	normalizeSlot(&d.Slot)
	d.Client.CreatedAt = d.Client.CreatedAt.UTC()
	return &d, nil
}

func (r *PgRepository) ListAvailableSlots(ctx context.Context, providerID uuid.UUID, now time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots s
		WHERE s.provider_id = $1
		  AND s.start_time > $3
		  AND NOT EXISTS (
		      SELECT 1
		      FROM appointments a
		      WHERE a.slot_id = s.id
		        AND `+activeAppointmentCond+`
		  )
		ORDER BY s.start_time ASC
	`, providerID, HoldCutoff(now), now)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

// Tx methods

func (t pgTx) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return getProvider(ctx, t.tx, id)
}

func (t pgTx) GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, name, created_at
		FROM clients
		WHERE id = $1
	`, id)
	return scanClient(row)
}

func (t pgTx) LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots s
		WHERE s.id = $1
		FOR UPDATE
	`, id)
	return scanSlot(row)
}

func (t pgTx) ExistingSlotStarts(ctx context.Context, providerID uuid.UUID, starts []time.Time) ([]time.Time, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT start_time
		FROM slots
		WHERE provider_id = $1
		  AND start_time = ANY($2::timestamptz[])
	`, providerID, starts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var st time.Time
		if err := rows.Scan(&st); err != nil {
			return nil, err
		}
		out = append(out, st.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertSlots writes the batch as one statement. Starts created concurrently by another
// transaction are skipped by ON CONFLICT and are not returned.
func (t pgTx) InsertSlots(ctx context.Context, slots []Slot) ([]Slot, error) {
	if len(slots) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(slots))
	starts := make([]time.Time, len(slots))
	ends := make([]time.Time, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
		starts[i] = s.StartTime
		ends[i] = s.EndTime
	}

	rows, err := t.tx.Query(ctx, `
		INSERT INTO slots AS s (id, provider_id, start_time, end_time, created_at)
		SELECT b.id, $1::uuid, b.start_time, b.end_time, now()
		FROM unnest($2::uuid[], $3::timestamptz[], $4::timestamptz[]) AS b(id, start_time, end_time)
		ON CONFLICT (provider_id, start_time) DO NOTHING
		RETURNING `+slotColumns+`
	`, slots[0].ProviderID, ids, starts, ends)
	if err != nil {
		return nil, err
	}

	out, err := scanSlots(rows)
	if err != nil {
		return nil, err
	}
	sortSlots(out)
	return out, nil
}

func (t pgTx) HasActiveAppointment(ctx context.Context, slotID uuid.UUID, now time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
		    SELECT 1
		    FROM appointments a
		    WHERE a.slot_id = $1
		      AND `+activeAppointmentCond+`
		)
	`, slotID, HoldCutoff(now)).Scan(&exists)
	return exists, err
}

func (t pgTx) InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments AS a (id, slot_id, client_id, reservation_time, confirmed)
		VALUES ($1, $2, $3, $4, false)
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.SlotID, appt.ClientID, appt.ReservationTime)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, translateWriteError("insert appointment", err)
	}
	return created, nil
}

func (t pgTx) ConfirmAppointment(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments AS a
		SET confirmed = true,
		    confirmed_at = $3
		WHERE a.id = $1
		  AND NOT a.confirmed
		  AND a.reservation_time >= $2
		RETURNING `+appointmentColumns+`
	`, id, HoldCutoff(now), now)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, translateWriteError("confirm appointment", err)
	}
	return updated, nil
}

func (t pgTx) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t pgTx) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// translateWriteError maps constraint violations that encode business rules.
func translateWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == "appointments_one_confirmed_per_slot" {
				return ErrSlotUnavailable
			}
		case pgForeignKeyViolation:
			switch pgErr.ConstraintName {
			case "appointments_slot_id_fkey":
				return ErrSlotNotFound
			case "appointments_client_id_fkey":
				return ErrClientNotFound
			}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
