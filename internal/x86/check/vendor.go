package check

import "github.com/tinyrange/cpucheck/internal/x86/hw"

// Vendor is the processor manufacturer as identified by the CPUID vendor tag.
type Vendor int

const (
	VendorUnknown Vendor = iota
	VendorIntel
	VendorAMD
	VendorCentaur
	VendorTransmeta
)

func (v Vendor) String() string {
	switch v {
	case VendorIntel:
		return "intel"
	case VendorAMD:
		return "amd"
	case VendorCentaur:
		return "centaur"
	case VendorTransmeta:
		return "transmeta"
	default:
		return "unknown"
	}
}

var vendorTags = map[[3]uint32]Vendor{
	hw.VendorTag("GenuineIntel"): VendorIntel,
	hw.VendorTag("AuthenticAMD"): VendorAMD,
	hw.VendorTag("CentaurHauls"): VendorCentaur,
	hw.VendorTag("GenuineTMx86"): VendorTransmeta,
}

// ClassifyVendor maps a captured vendor tag to a known vendor.
func ClassifyVendor(tag [3]uint32) Vendor {
	if v, ok := vendorTags[tag]; ok {
		return v
	}
	return VendorUnknown
}
