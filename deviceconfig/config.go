// Package deviceconfig contains any device-specific configuration.
package deviceconfig

// DeviceConfig describes the mass storage disk a firmware build exposes.
type DeviceConfig struct {
	// BlockSize of the disk as reported to the USB host.
	BlockSize int
	// FlashBudget is the number of bytes of flash reserved for the disk
	// contents. Zero means the image size is not limited.
	FlashBudget int64
	// Symbol is the name of the C array the firmware's MSC callbacks read.
	Symbol string
	// ReadOnly makes the firmware reject writes from the USB host.
	ReadOnly bool
	// VolumeLabel is used unless overridden by flag or user configuration.
	VolumeLabel string
	// Skip lists glob patterns of files which never belong on the disk.
	Skip []string
	// Slug is a unique, short string used by mkmscimage to refer to this device.
	Slug string
}

const kiB = 1024

var defaultSkip = []string{
	"__pycache__",
	".vscode",
	".git",
	"*.pyc",
	"requirements*.txt",
	"other_guis",
}

var (
	// DeviceConfigs contains a mapping from board name to device-specific config
	DeviceConfigs = map[string]DeviceConfig{
		// usbkvm host side, 2 MiB QSPI flash shared with the firmware
		"usbkvm RP2040": {
			BlockSize:   1024,
			FlashBudget: 512 * kiB,
			Symbol:      "msc_disk",
			ReadOnly:    true,
			VolumeLabel: "USBKVM",
			Skip:        defaultSkip,
			Slug:        "rp2040",
		},
		// 4 MiB flash: the FAT12 geometry (683 blocks of 1 KiB) is the
		// limit, not the flash
		"usbkvm RP2350": {
			BlockSize:   1024,
			FlashBudget: 640 * kiB,
			Symbol:      "msc_disk",
			ReadOnly:    true,
			VolumeLabel: "USBKVM",
			Skip:        defaultSkip,
			Slug:        "rp2350",
		},
		"QEMU testing": {
			BlockSize:   512,
			Symbol:      "msc_disk",
			VolumeLabel: "QEMUTEST",
			Slug:        "qemutesting",
		},
	}
)

func GetDeviceConfigBySlug(slug string) (DeviceConfig, bool) {
	for _, cfg := range DeviceConfigs {
		if cfg.Slug == slug {
			return cfg, true
		}
	}

	return DeviceConfig{}, false
}
