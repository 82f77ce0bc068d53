package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ambulance-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveBooking(ctx context.Context, b *models.Booking) error {
	var destLat, destLon sql.NullFloat64
	if b.Destination != nil {
		destLat = sql.NullFloat64{Float64: b.Destination.Lat, Valid: true}
		destLon = sql.NullFloat64{Float64: b.Destination.Lon, Valid: true}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO bookings(id, user_id, driver_id, hospital_id, pickup_lat, pickup_lon, dest_lat, dest_lon, status, created_at, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		b.ID, b.UserID, nullStr(b.DriverID), nullStr(b.HospitalID),
		b.Pickup.Lat, b.Pickup.Lon, destLat, destLon, string(b.Status), b.CreatedAt, b.UpdatedAt)
	return err
}

func (p *PostgresStore) UpdateBooking(ctx context.Context, b *models.Booking) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE bookings SET driver_id=$1, status=$2, updated_at=$3 WHERE id=$4`,
		nullStr(b.DriverID), string(b.Status), time.Now().UTC(), b.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Entity: "booking", ID: b.ID}
	}
	return nil
}

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, user_id, driver_id, hospital_id, pickup_lat, pickup_lon, dest_lat, dest_lon, status, created_at, updated_at
		 FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "booking", ID: id}
	}
	return b, err
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	return p.listBookings(ctx, `user_id=$1`, userID)
}

func (p *PostgresStore) ListByDriver(ctx context.Context, driverID string) ([]*models.Booking, error) {
	return p.listBookings(ctx, `driver_id=$1`, driverID)
}

func (p *PostgresStore) listBookings(ctx context.Context, where, arg string) ([]*models.Booking, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, user_id, driver_id, hospital_id, pickup_lat, pickup_lon, dest_lat, dest_lon, status, created_at, updated_at
		 FROM bookings WHERE `+where+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) HasActiveForUser(ctx context.Context, userID string) (bool, error) {
	return p.hasActive(ctx, `user_id=$1`, userID)
}

func (p *PostgresStore) HasActiveForDriver(ctx context.Context, driverID string) (bool, error) {
	return p.hasActive(ctx, `driver_id=$1`, driverID)
}

func (p *PostgresStore) hasActive(ctx context.Context, where, arg string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bookings WHERE `+where+` AND status NOT IN ('COMPLETED','CANCELLED'))`,
		arg).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM bookings WHERE status IN ('COMPLETED','CANCELLED') AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *PostgresStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	var d models.Driver
	err := p.db.QueryRowContext(ctx,
		`SELECT id, full_name, vehicle_reg, online FROM drivers WHERE id=$1`, id).
		Scan(&d.ID, &d.FullName, &d.VehicleReg, &d.Online)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "driver", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *PostgresStore) FindAllHospitals(ctx context.Context) ([]models.Hospital, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, lat, lon, total_beds, emergency_beds FROM hospitals`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Hospital
	for rows.Next() {
		var h models.Hospital
		if err := rows.Scan(&h.ID, &h.Name, &h.Loc.Lat, &h.Loc.Lon, &h.TotalBeds, &h.EmergencyBeds); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var driverID, hospitalID sql.NullString
	var destLat, destLon sql.NullFloat64
	var status string
	err := row.Scan(&b.ID, &b.UserID, &driverID, &hospitalID,
		&b.Pickup.Lat, &b.Pickup.Lon, &destLat, &destLon, &status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.DriverID = driverID.String
	b.HospitalID = hospitalID.String
	if destLat.Valid && destLon.Valid {
		b.Destination = &models.Coord{Lat: destLat.Float64, Lon: destLon.Float64}
	}
	b.Status = models.BookingStatus(status)
	return &b, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
