package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezBus           = "org.bluez"
	adapterIface       = "org.bluez.Adapter1"
	deviceIface        = "org.bluez.Device1"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	propsIface         = "org.freedesktop.DBus.Properties"

	errAlreadyExists = "org.bluez.Error.AlreadyExists"
	errInProgress    = "org.bluez.Error.InProgress"

	// Bluetooth Class of Device, major class "Peripheral" (mouse,
	// keyboard, trackpad).
	majorClassPeripheral = 0x05

	// GAP Appearance category "Human Interface Device" (0x03C0-0x03FF).
	appearanceCategoryHID = 0x0F
)

// managedObjects is the reply shape of ObjectManager.GetManagedObjects.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// BlueZ talks to bluetoothd over the system D-Bus. It serves as Enumerator
// and Backend and can watch for device changes.
type BlueZ struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath
	logger  Logger
}

// AdapterPath converts an adapter name like "hci0" to its object path.
func AdapterPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

// ConnectBlueZ connects to the system bus and confirms bluetoothd is
// present.
func ConnectBlueZ(ctx context.Context, adapter string) (*BlueZ, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("listing bus names: %w", err)
	}
	if !slices.Contains(names, bluezBus) {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, ErrBlueZNotFound
	}

	return &BlueZ{conn: conn, adapter: AdapterPath(adapter), logger: noopLogger{}}, nil
}

// SetLogger sets the logger.
func (b *BlueZ) SetLogger(logger Logger) {
	b.logger = logger
}

// Close closes the bus connection.
func (b *BlueZ) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// deviceObjectPath converts "AA:BB:CC:DD:EE:FF" to
// "<adapter>/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapter dbus.ObjectPath, addr string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapter) + "/dev_" + strings.ReplaceAll(addr, ":", "_"))
}

// macFromPath is the inverse of deviceObjectPath. It returns "" for paths
// outside adapter.
func macFromPath(adapter, path dbus.ObjectPath) string {
	rest, ok := strings.CutPrefix(string(path), string(adapter)+"/dev_")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return strings.ReplaceAll(rest, "_", ":")
}

func (b *BlueZ) managedObjects(ctx context.Context) (managedObjects, error) {
	var objects managedObjects
	call := b.conn.Object(bluezBus, "/").CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0)
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("%w: GetManagedObjects: %w", ErrUnavailable, err)
	}
	return objects, nil
}

// ListPaired returns paired peripherals on the adapter.
func (b *BlueZ) ListPaired(ctx context.Context) ([]PairedDevice, error) {
	objects, err := b.managedObjects(ctx)
	if err != nil {
		return nil, err
	}
	return pairedPeripherals(objects, b.adapter, b.logger), nil
}

// pairedPeripherals extracts paired peripheral devices on adapter, sorted
// by object path for stable output.
func pairedPeripherals(objects managedObjects, adapter dbus.ObjectPath, logger Logger) []PairedDevice {
	paths := make([]dbus.ObjectPath, 0, len(objects))
	for path := range objects {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	var devices []PairedDevice
	for _, path := range paths {
		props, ok := objects[path][deviceIface]
		if !ok || !strings.HasPrefix(string(path), string(adapter)+"/") {
			continue
		}
		if paired, _ := props["Paired"].Value().(bool); !paired {
			continue
		}
		if !isPeripheral(props) {
			continue
		}

		addr, _ := props["Address"].Value().(string)
		if addr == "" {
			addr = macFromPath(adapter, path)
		}
		if addr == "" {
			logger.Warn("found device with no address, skipping", "path", path)
			continue
		}

		name, _ := props["Alias"].Value().(string)
		if name == "" {
			name, _ = props["Name"].Value().(string)
		}
		if name == "" {
			name = UnknownName
		}
		connected, _ := props["Connected"].Value().(bool)

		devices = append(devices, PairedDevice{Address: addr, Name: name, Connected: connected})
	}
	return devices
}

// isPeripheral reports whether a device looks like an input peripheral.
// Classic devices carry Class; LE devices carry Appearance. Devices with
// neither are included since they cannot be ruled out.
func isPeripheral(props map[string]dbus.Variant) bool {
	if v, ok := props["Class"]; ok {
		if class, ok := v.Value().(uint32); ok {
			return (class>>8)&0x1f == majorClassPeripheral
		}
	}
	if v, ok := props["Appearance"]; ok {
		if appearance, ok := v.Value().(uint16); ok {
			return appearance>>6 == appearanceCategoryHID
		}
	}
	return true
}

// Execute performs op through the Device1/Adapter1 interfaces. The returned
// text is "ok" on success or "error: <dbus error>" together with the error.
func (b *BlueZ) Execute(ctx context.Context, id string, op Operation) (string, error) {
	var err error
	switch op {
	case OpPair:
		err = b.pair(ctx, id)
	case OpConnect:
		err = b.call(ctx, deviceObjectPath(b.adapter, id), deviceIface+".Connect")
	case OpUnpair:
		err = b.call(ctx, b.adapter, adapterIface+".RemoveDevice", deviceObjectPath(b.adapter, id))
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}

	if err != nil {
		b.logger.Debug("bluez call failed", "operation", op, "device_id", id, "error", err)
		return "error: " + err.Error(), err
	}
	return "ok", nil
}

// pair pairs and trusts a device. A removed device is no longer known to
// the adapter, so discovery is started and the attempt fails until the
// device shows up again.
func (b *BlueZ) pair(ctx context.Context, id string) error {
	path := deviceObjectPath(b.adapter, id)

	objects, err := b.managedObjects(ctx)
	if err != nil {
		return err
	}
	if _, known := objects[path][deviceIface]; !known {
		if err := b.call(ctx, b.adapter, adapterIface+".StartDiscovery"); err != nil && !isDBusError(err, errInProgress) {
			return fmt.Errorf("starting discovery: %w", err)
		}
		return fmt.Errorf("device %s not discovered yet", id)
	}

	if err := b.call(ctx, path, deviceIface+".Pair"); err != nil && !isDBusError(err, errAlreadyExists) {
		return err
	}

	// Trusted lets the device reconnect on its own later.
	if err := b.call(ctx, path, propsIface+".Set", deviceIface, "Trusted", dbus.MakeVariant(true)); err != nil {
		b.logger.Warn("failed to mark device trusted", "device_id", id, "error", err)
	}
	if err := b.call(ctx, b.adapter, adapterIface+".StopDiscovery"); err != nil {
		b.logger.Debug("stop discovery", "error", err)
	}
	return nil
}

func (b *BlueZ) call(ctx context.Context, path dbus.ObjectPath, method string, args ...any) error {
	return b.conn.Object(bluezBus, path).CallWithContext(ctx, method, 0, args...).Err
}

func isDBusError(err error, name string) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name == name
	}
	return false
}

// Watch calls onChange whenever BlueZ reports a device property change or
// a device appearing or disappearing. It blocks until ctx is done.
func (b *BlueZ) Watch(ctx context.Context, onChange func()) error {
	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchInterface(propsIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchOption("path_namespace", "/org/bluez"),
		},
		{
			dbus.WithMatchInterface(objectManagerIface),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchInterface(objectManagerIface),
			dbus.WithMatchMember("InterfacesRemoved"),
		},
	}
	for _, m := range matches {
		if err := b.conn.AddMatchSignalContext(ctx, m...); err != nil {
			return fmt.Errorf("adding signal match: %w", err)
		}
	}

	signals := make(chan *dbus.Signal, 16)
	b.conn.Signal(signals)
	defer b.conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if relevantSignal(sig, b.adapter) {
				onChange()
			}
		}
	}
}

// relevantSignal filters bus traffic down to Device1 changes on adapter.
func relevantSignal(sig *dbus.Signal, adapter dbus.ObjectPath) bool {
	if sig == nil {
		return false
	}
	switch sig.Name {
	case propsIface + ".PropertiesChanged":
		if len(sig.Body) == 0 {
			return false
		}
		iface, _ := sig.Body[0].(string)
		return iface == deviceIface && strings.HasPrefix(string(sig.Path), string(adapter)+"/")
	case objectManagerIface + ".InterfacesAdded", objectManagerIface + ".InterfacesRemoved":
		if len(sig.Body) == 0 {
			return false
		}
		path, _ := sig.Body[0].(dbus.ObjectPath)
		return strings.HasPrefix(string(path), string(adapter)+"/")
	}
	return false
}
