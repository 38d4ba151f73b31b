package wire

// ErrorDomain は ErrorInfo の domain に設定する値です。
const ErrorDomain = "siteaccess"

// ErrorInfo の reason に設定する値です。入場拒否は admission.Reason の値をそのまま使います。
const (
	ReasonEmployeeNotFound = "employee_not_found"
	ReasonGateNotFound     = "gate_not_found"
	ReasonVendorNotFound   = "vendor_not_found"
	ReasonStorage          = "storage_unavailable"
)

// ErrorInfo の metadata キーです。
const (
	MetadataCap       = "cap"
	MetadataOccupancy = "occupancy"
	MetadataOp        = "op"
)
