package rollcall

import "github.com/aadithya-v/rollcall/store"

// snapshotToSession converts a store.Snapshot to a public Session.
func snapshotToSession(s store.Snapshot) *Session {
	return &Session{
		ID:          s.ID,
		ClassID:     s.ClassID,
		OwnerID:     s.OwnerID,
		Roster:      s.Roster,
		Token:       s.Token,
		TokenExpiry: s.TokenExpiry,
		WindowStart: s.WindowStart,
		WindowEnd:   s.WindowEnd,
		Geofence:    geofenceFromStore(s.Geofence),
		Status:      Status(s.Status),
		CreatedAt:   s.CreatedAt,
		EndedAt:     s.EndedAt,
	}
}

func geofenceToStore(g *Geofence) *store.Geofence {
	if g == nil {
		return nil
	}
	return &store.Geofence{
		Latitude:     g.Latitude,
		Longitude:    g.Longitude,
		RadiusMeters: g.RadiusMeters,
	}
}

func geofenceFromStore(g *store.Geofence) *Geofence {
	if g == nil {
		return nil
	}
	return &Geofence{
		Latitude:     g.Latitude,
		Longitude:    g.Longitude,
		RadiusMeters: g.RadiusMeters,
	}
}

func copyPoint(p *Point) *Point {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// recordToEntry flattens an AttendanceRecord for the ledger and archive.
func recordToEntry(r AttendanceRecord) store.Entry {
	e := store.Entry{
		SessionID:    r.SessionID,
		Principal:    r.Principal,
		RecordedAt:   r.RecordedAt,
		DeviceIP:     r.Device.IP,
		DeviceUA:     r.Device.UserAgent,
		Browser:      r.Device.Browser,
		OS:           r.Device.OS,
		DeviceType:   r.Device.DeviceType,
		NetIP:        r.Network.IP,
		NetCity:      r.Network.City,
		NetCountry:   r.Network.Country,
		NetLatitude:  r.Network.Latitude,
		NetLongitude: r.Network.Longitude,
		NetMismatch:  r.NetworkMismatch,
	}
	if r.Location != nil {
		e.HasLocation = true
		e.Latitude = r.Location.Latitude
		e.Longitude = r.Location.Longitude
	}
	return e
}

func entryToRecord(e store.Entry) AttendanceRecord {
	r := AttendanceRecord{
		SessionID:  e.SessionID,
		Principal:  e.Principal,
		RecordedAt: e.RecordedAt,
		Device: DeviceInfo{
			IP:         e.DeviceIP,
			UserAgent:  e.DeviceUA,
			Browser:    e.Browser,
			OS:         e.OS,
			DeviceType: e.DeviceType,
		},
		Network: NetworkLocation{
			IP:        e.NetIP,
			City:      e.NetCity,
			Country:   e.NetCountry,
			Latitude:  e.NetLatitude,
			Longitude: e.NetLongitude,
		},
		NetworkMismatch: e.NetMismatch,
	}
	if e.HasLocation {
		r.Location = &Point{Latitude: e.Latitude, Longitude: e.Longitude}
	}
	return r
}

func entriesToRecords(entries []store.Entry) []AttendanceRecord {
	records := make([]AttendanceRecord, len(entries))
	for i, e := range entries {
		records[i] = entryToRecord(e)
	}
	return records
}
