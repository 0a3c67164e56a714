// Package fingerprint derives a stable per-machine identifier from
// hardware and OS signals. The identifier binds a license activation
// to one physical machine.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
)

// fallbackSeed is hashed alone when every factor, including the
// hostname, is unavailable. The deriver must still return a
// well-formed digest on such machines.
const fallbackSeed = "dhandha-unknown-device"

// Factor is a single fingerprint input. Lookup is best-effort: it may
// fail or return an empty string and the deriver degrades gracefully.
type Factor struct {
	Tag    string
	Lookup func() (string, error)
}

// Deriver computes a device fingerprint from an ordered factor list.
// The result is memoized: repeated calls within one process return
// the identical string even if a flaky factor would now answer
// differently.
type Deriver struct {
	factors []Factor
	logger  *slog.Logger

	once       sync.Once
	cached     string
	components map[string]string
}

// NewDeriver creates a deriver with the default factor set. Factor
// order is fixed by priority, not availability, so the same machine
// produces the same digest regardless of which lookups fail.
func NewDeriver(logger *slog.Logger) *Deriver {
	return NewDeriverWithFactors(logger, DefaultFactors())
}

// NewDeriverWithFactors creates a deriver with a custom factor list.
func NewDeriverWithFactors(logger *slog.Logger, factors []Factor) *Deriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deriver{
		factors: factors,
		logger:  logger.With(slog.String("component", "fingerprint")),
	}
}

// DefaultFactors returns the standard factor providers in priority
// order: OS installation ID, primary MAC address, CPU description,
// system board identifier, hostname.
func DefaultFactors() []Factor {
	return []Factor{
		{Tag: "MACHINE", Lookup: machineID},
		{Tag: "MAC", Lookup: primaryMACAddress},
		{Tag: "CPU", Lookup: cpuDescription},
		{Tag: "BOARD", Lookup: boardID},
		{Tag: "HOST", Lookup: hostname},
	}
}

// Derive returns the 64-character lowercase hex fingerprint. It never
// fails; with zero available factors it derives from the hostname or
// a fixed literal.
func (d *Deriver) Derive() string {
	d.once.Do(d.compute)
	return d.cached
}

// Components returns the per-factor breakdown captured at derivation
// time, for support and diagnostics display only.
func (d *Deriver) Components() map[string]string {
	d.once.Do(d.compute)
	out := make(map[string]string, len(d.components))
	for k, v := range d.components {
		out[k] = v
	}
	return out
}

func (d *Deriver) compute() {
	parts := make([]string, 0, len(d.factors))
	d.components = make(map[string]string, len(d.factors))

	for _, f := range d.factors {
		value, err := f.Lookup()
		value = strings.TrimSpace(value)
		if err != nil || value == "" {
			d.components[f.Tag] = "unavailable"
			d.logger.Debug("fingerprint factor unavailable",
				slog.String("factor", f.Tag),
				slog.Any("error", err),
			)
			continue
		}
		d.components[f.Tag] = value
		parts = append(parts, f.Tag+":"+value)
	}

	if len(parts) == 0 {
		if name, err := hostname(); err == nil && name != "" {
			parts = append(parts, "HOST:"+name)
		} else {
			parts = append(parts, fallbackSeed)
		}
		d.logger.Warn("all fingerprint factors unavailable, using fallback",
			slog.String("seed", parts[0]),
		)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	d.cached = hex.EncodeToString(sum[:])

	d.logger.Info("device fingerprint derived",
		slog.String("fingerprint", d.cached),
		slog.Int("factors_available", len(parts)),
		slog.Int("factors_total", len(d.factors)),
	)
}

// machineID returns the OS installation identifier (e.g.
// /etc/machine-id on Linux, the IOPlatformUUID on macOS).
func machineID() (string, error) {
	id, err := host.HostID()
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(id)), nil
}

// primaryMACAddress returns the hardware address of the primary
// physical interface. Loopback, down, and virtual interfaces are
// skipped; wired interfaces are preferred over wireless so a USB
// Wi-Fi dongle does not change the fingerprint of a cabled machine.
func primaryMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var wireless string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}
		mac := iface.HardwareAddr.String()
		if mac == "" || mac == "00:00:00:00:00:00" {
			continue
		}
		if isWirelessInterface(iface.Name) {
			if wireless == "" {
				wireless = mac
			}
			continue
		}
		return mac, nil
	}

	if wireless != "" {
		return wireless, nil
	}
	return "", os.ErrNotExist
}

// isVirtualInterface filters interfaces created by container runtimes,
// hypervisors, and tunnels. Their MACs change across restarts.
func isVirtualInterface(name string) bool {
	lower := strings.ToLower(name)
	prefixes := []string{"veth", "docker", "br-", "virbr", "vbox", "vmnet", "vnet", "tun", "tap", "wg", "lo"}
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func isWirelessInterface(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "wl") || strings.HasPrefix(lower, "wifi")
}

// cpuDescription returns a stable CPU model string.
func cpuDescription() (string, error) {
	infos, err := cpu.Info()
	if err == nil && len(infos) > 0 {
		desc := strings.TrimSpace(infos[0].ModelName)
		if desc == "" {
			desc = strings.TrimSpace(infos[0].VendorID)
		}
		if desc != "" {
			return desc, nil
		}
	}
	// Architecture info is a weaker but always-present signal
	return runtime.GOOS + "-" + runtime.GOARCH, nil
}

// boardID reads the motherboard/product identifier from DMI on Linux.
// Other platforms report unavailable and the remaining factors carry
// the fingerprint.
func boardID() (string, error) {
	if runtime.GOOS != "linux" {
		return "", os.ErrNotExist
	}
	candidates := []string{
		"/sys/class/dmi/id/product_uuid",
		"/sys/class/dmi/id/board_serial",
		"/sys/class/dmi/id/product_serial",
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		value := strings.ToLower(strings.TrimSpace(string(data)))
		if value != "" && value != "none" && value != "to be filled by o.e.m." {
			return value, nil
		}
	}
	return "", os.ErrNotExist
}

// hostname returns the normalized machine hostname.
func hostname() (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(name)), nil
}
