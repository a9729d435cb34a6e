package task

// Kind names a remote operation, e.g. "create_media_buy".
type Kind string

// Well-known task kinds.
const (
	KindCreateMediaBuy        Kind = "create_media_buy"
	KindUpdateMediaBuy        Kind = "update_media_buy"
	KindSyncCreatives         Kind = "sync_creatives"
	KindGetProducts           Kind = "get_products"
	KindGetMediaBuyDelivery   Kind = "get_media_buy_delivery"
	KindListCreativeFormats   Kind = "list_creative_formats"
	KindActivateSignal        Kind = "activate_signal"
	KindGetSignals            Kind = "get_signals"
	KindProvidePerformanceFbk Kind = "provide_performance_feedback"
)

// DefaultReportKinds are the task kinds whose webhooks may be periodic
// delivery reports rather than one-shot completions.
var DefaultReportKinds = []Kind{KindGetMediaBuyDelivery, "delivery_report"}

func (k Kind) String() string {
	return string(k)
}
