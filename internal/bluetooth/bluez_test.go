package bluetooth

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/godbus/dbus/v5"
)

const testAdapter = dbus.ObjectPath("/org/bluez/hci0")

func TestDeviceObjectPath(t *testing.T) {
	got := deviceObjectPath(testAdapter, "AA:BB:CC:DD:EE:FF")
	want := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")
	if got != want {
		t.Errorf("deviceObjectPath() = %q, want %q", got, want)
	}
	if mac := macFromPath(testAdapter, got); mac != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("macFromPath(deviceObjectPath()) = %q", mac)
	}
}

func TestMacFromPath(t *testing.T) {
	tests := []struct {
		path dbus.ObjectPath
		want string
	}{
		{"/org/bluez/hci0/dev_11_22_33_44_55_66", "11:22:33:44:55:66"},
		{"/org/bluez/hci0", ""},
		{"/org/bluez/hci1/dev_11_22_33_44_55_66", ""},
		{"/org/bluez/hci0/dev_11_22_33_44_55_66/service0010", ""},
		{"/org/bluez/hci0/dev_", ""},
	}
	for _, tt := range tests {
		if got := macFromPath(testAdapter, tt.path); got != tt.want {
			t.Errorf("macFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func device(props map[string]any) map[string]map[string]dbus.Variant {
	variants := make(map[string]dbus.Variant, len(props))
	for k, v := range props {
		variants[k] = dbus.MakeVariant(v)
	}
	return map[string]map[string]dbus.Variant{deviceIface: variants}
}

func TestPairedPeripherals(t *testing.T) {
	objects := managedObjects{
		"/org/bluez/hci0": {adapterIface: {}},
		"/org/bluez/hci0/dev_00_00_00_00_00_01": device(map[string]any{
			"Address": "00:00:00:00:00:01", "Alias": "MX Master", "Paired": true,
			"Connected": true, "Class": uint32(0x002580),
		}),
		"/org/bluez/hci0/dev_00_00_00_00_00_02": device(map[string]any{
			"Address": "00:00:00:00:00:02", "Alias": "Headphones", "Paired": true,
			"Class": uint32(0x240404),
		}),
		"/org/bluez/hci0/dev_00_00_00_00_00_03": device(map[string]any{
			"Address": "00:00:00:00:00:03", "Alias": "Unpaired Kbd", "Paired": false,
			"Class": uint32(0x002540),
		}),
		"/org/bluez/hci0/dev_00_00_00_00_00_04": device(map[string]any{
			"Address": "00:00:00:00:00:04", "Paired": true, "Appearance": uint16(0x03C2),
		}),
		"/org/bluez/hci0/dev_00_00_00_00_00_05": device(map[string]any{
			"Address": "00:00:00:00:00:05", "Name": "Watch", "Paired": true, "Appearance": uint16(0x00C0),
		}),
		"/org/bluez/hci0/dev_00_00_00_00_00_06": device(map[string]any{
			"Name": "No Class", "Paired": true,
		}),
		"/org/bluez/hci1/dev_00_00_00_00_00_07": device(map[string]any{
			"Address": "00:00:00:00:00:07", "Alias": "Other adapter", "Paired": true,
		}),
	}

	got := pairedPeripherals(objects, testAdapter, noopLogger{})
	want := []PairedDevice{
		{Address: "00:00:00:00:00:01", Name: "MX Master", Connected: true},
		{Address: "00:00:00:00:00:04", Name: UnknownName},
		{Address: "00:00:00:00:00:06", Name: "No Class"},
	}
	if !slices.Equal(got, want) {
		t.Errorf("pairedPeripherals() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestRelevantSignal(t *testing.T) {
	tests := []struct {
		name string
		sig  *dbus.Signal
		want bool
	}{
		{
			name: "device property change",
			sig: &dbus.Signal{
				Path: "/org/bluez/hci0/dev_00_00_00_00_00_01",
				Name: propsIface + ".PropertiesChanged",
				Body: []any{deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}, []string{}},
			},
			want: true,
		},
		{
			name: "adapter property change",
			sig: &dbus.Signal{
				Path: "/org/bluez/hci0",
				Name: propsIface + ".PropertiesChanged",
				Body: []any{adapterIface, map[string]dbus.Variant{}, []string{}},
			},
			want: false,
		},
		{
			name: "battery change on device",
			sig: &dbus.Signal{
				Path: "/org/bluez/hci0/dev_00_00_00_00_00_01",
				Name: propsIface + ".PropertiesChanged",
				Body: []any{"org.bluez.Battery1", map[string]dbus.Variant{}, []string{}},
			},
			want: false,
		},
		{
			name: "device added",
			sig: &dbus.Signal{
				Path: "/",
				Name: objectManagerIface + ".InterfacesAdded",
				Body: []any{dbus.ObjectPath("/org/bluez/hci0/dev_00_00_00_00_00_09"), map[string]map[string]dbus.Variant{}},
			},
			want: true,
		},
		{
			name: "device removed on other adapter",
			sig: &dbus.Signal{
				Path: "/",
				Name: objectManagerIface + ".InterfacesRemoved",
				Body: []any{dbus.ObjectPath("/org/bluez/hci1/dev_00_00_00_00_00_09"), []string{deviceIface}},
			},
			want: false,
		},
		{name: "nil", sig: nil, want: false},
		{name: "empty body", sig: &dbus.Signal{Name: propsIface + ".PropertiesChanged"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relevantSignal(tt.sig, testAdapter); got != tt.want {
				t.Errorf("relevantSignal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDBusError(t *testing.T) {
	valueErr := fmt.Errorf("pair: %w", dbus.Error{Name: errAlreadyExists})
	ptrErr := fmt.Errorf("pair: %w", &dbus.Error{Name: errInProgress})

	if !isDBusError(valueErr, errAlreadyExists) {
		t.Error("isDBusError(value) = false")
	}
	if !isDBusError(ptrErr, errInProgress) {
		t.Error("isDBusError(pointer) = false")
	}
	if isDBusError(valueErr, errInProgress) {
		t.Error("isDBusError matched wrong name")
	}
	if isDBusError(errors.New("plain"), errAlreadyExists) {
		t.Error("isDBusError matched non-dbus error")
	}
}

func TestAdapterPath(t *testing.T) {
	if got := AdapterPath("hci1"); got != "/org/bluez/hci1" {
		t.Errorf("AdapterPath() = %q", got)
	}
}
