package mesh

// Stats tracks pipeline activity. All counters are owned by the main task;
// no synchronization is needed.
type Stats struct {
	RxFrames          uint64
	ValidReports      uint64
	DuplicatesDropped uint64
	TTLExpired        uint64
	OwnPacketsIgnored uint64
	GatewaySkips      uint64 // broadcasts terminated at the gateway
	PacketsForwarded  uint64
	QueueOverflows    uint64
	UnknownDropped    uint64
	DecodeErrors      uint64
	VersionWarnings   uint64

	TxReports  uint64
	TxForwards uint64
	TxFailures uint64
}
