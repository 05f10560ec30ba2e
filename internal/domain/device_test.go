package domain

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func testObservation(mac, ip string) Observation {
	return Observation{
		MAC: mac,
		IP:  ip,
		Info: DeviceInfo{
			Name:        "Kitchen relay",
			Type:        "relay",
			MainCommand: "toggle",
			Raw:         json.RawMessage(`{"status":"successful"}`),
		},
	}
}

func TestNewDevice(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewDevice(testObservation("aa:bb:cc:dd:ee:01", "192.168.1.20"), "192.168.1.20:3796", now)

	if d.MAC() != "aa:bb:cc:dd:ee:01" {
		t.Errorf("expected MAC aa:bb:cc:dd:ee:01, got %s", d.MAC())
	}
	if !d.Available() {
		t.Error("expected new device to be available")
	}

	s := d.Snapshot()
	if s.Address != "192.168.1.20:3796" {
		t.Errorf("expected address 192.168.1.20:3796, got %s", s.Address)
	}
	if s.Manufacturer != Manufacturer {
		t.Errorf("expected manufacturer %q, got %q", Manufacturer, s.Manufacturer)
	}
	if s.LastSeen == nil || !s.LastSeen.Equal(now) {
		t.Errorf("expected last seen %v, got %v", now, s.LastSeen)
	}
}

func TestDeviceApply(t *testing.T) {
	now := time.Now()

	t.Run("same observation is not a change", func(t *testing.T) {
		obs := testObservation("aa:bb:cc:dd:ee:01", "192.168.1.20")
		d := NewDevice(obs, "192.168.1.20:3796", now)
		before := d.Snapshot()

		changed, recovered := d.Apply(obs, "192.168.1.20:3796", now)
		if changed || recovered {
			t.Errorf("expected no change, got changed=%v recovered=%v", changed, recovered)
		}
		if !reflect.DeepEqual(before, d.Snapshot()) {
			t.Error("expected snapshot to be unchanged")
		}
	})

	t.Run("address change keeps identity", func(t *testing.T) {
		d := NewDevice(testObservation("aa:bb:cc:dd:ee:01", "192.168.1.20"), "192.168.1.20:3796", now)
		changed, _ := d.Apply(testObservation("aa:bb:cc:dd:ee:01", "192.168.1.77"), "192.168.1.77:3796", now.Add(time.Minute))

		if !changed {
			t.Error("expected address change to be reported")
		}
		s := d.Snapshot()
		if s.MAC != "aa:bb:cc:dd:ee:01" || s.IP != "192.168.1.77" || s.Address != "192.168.1.77:3796" {
			t.Errorf("unexpected snapshot after move: %+v", s)
		}
	})

	t.Run("unavailable device recovers", func(t *testing.T) {
		obs := testObservation("aa:bb:cc:dd:ee:01", "192.168.1.20")
		d := NewDevice(obs, "192.168.1.20:3796", now)
		d.MarkUnreachable(now)

		_, recovered := d.Apply(obs, "192.168.1.20:3796", now)
		if !recovered {
			t.Error("expected recovery to be reported")
		}
		if !d.Available() {
			t.Error("expected device to be available again")
		}
	})
}

func TestDeviceMiss(t *testing.T) {
	now := time.Now()
	d := NewDevice(testObservation("aa:bb:cc:dd:ee:01", "192.168.1.20"), "192.168.1.20:3796", now)

	for i := 1; i < 3; i++ {
		if _, gone := d.Miss(3, now); gone {
			t.Fatalf("miss %d: device went unavailable before threshold", i)
		}
		if !d.Available() {
			t.Fatalf("miss %d: expected device to stay available", i)
		}
	}

	wasAvailable, gone := d.Miss(3, now)
	if !wasAvailable || !gone {
		t.Errorf("expected third miss to flip availability, got wasAvailable=%v gone=%v", wasAvailable, gone)
	}

	s := d.Snapshot()
	if s.Available {
		t.Error("expected device to be unavailable")
	}
	if s.Address != "192.168.1.20:3796" {
		t.Errorf("expected address to be preserved, got %q", s.Address)
	}

	wasAvailable, gone = d.Miss(3, now)
	if wasAvailable || gone {
		t.Error("expected further misses on an unavailable device to report nothing")
	}
}

func TestRestoreDevice(t *testing.T) {
	seen := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := RestoreDevice(DeviceSnapshot{
		MAC:         "aa:bb:cc:dd:ee:02",
		IP:          "10.0.0.5",
		Address:     "10.0.0.5:3796",
		Name:        "Servo",
		Type:        "servo",
		MainCommand: "toggle",
		Available:   true,
		LastSeen:    &seen,
	})

	if d.Available() {
		t.Error("expected restored device to start unavailable")
	}
	addr, typ, _ := d.Target()
	if addr != "10.0.0.5:3796" || typ != "servo" {
		t.Errorf("unexpected target %s %s", addr, typ)
	}
	if d.MainCommand() != "toggle" {
		t.Errorf("expected main command toggle, got %q", d.MainCommand())
	}
}

func TestObservationAddress(t *testing.T) {
	obs := testObservation("aa:bb:cc:dd:ee:01", "192.168.1.20")
	if got := obs.Address("192.168.1.20:3796"); got != "192.168.1.20:3796" {
		t.Errorf("expected fallback address, got %s", got)
	}

	obs.Info.Server = "192.168.1.20:8080"
	if got := obs.Address("192.168.1.20:3796"); got != "192.168.1.20:8080" {
		t.Errorf("expected server address, got %s", got)
	}
}
