package hw

// RTIO analyzer registers.
const (
	AnalyzerOverflowReset Register = "rtio_analyzer_message_encoder_overflow_reset"
	AnalyzerOverflow      Register = "rtio_analyzer_message_encoder_overflow"
	AnalyzerDMABase       Register = "rtio_analyzer_dma_base_address"
	AnalyzerDMALast       Register = "rtio_analyzer_dma_last_address"
	AnalyzerDMAReset      Register = "rtio_analyzer_dma_reset"
	AnalyzerDMAByteCount  Register = "rtio_analyzer_dma_byte_count"
	AnalyzerEnable        Register = "rtio_analyzer_enable"
	AnalyzerBusy          Register = "rtio_analyzer_busy"
)

// Ethernet MAC SRAM registers.
// The writer receives frames from the wire, the reader sends them.
const (
	EthRxPending Register = "ethmac_sram_writer_ev_pending"
	EthRxSlot    Register = "ethmac_sram_writer_slot"
	EthRxLength  Register = "ethmac_sram_writer_length"
	EthTxReady   Register = "ethmac_sram_reader_ready"
	EthTxSlot    Register = "ethmac_sram_reader_slot"
	EthTxLength  Register = "ethmac_sram_reader_length"
	EthTxStart   Register = "ethmac_sram_reader_start"
)

// ConstRTIOLogChannel is the gateware constant naming the RTIO channel
// used for log messages in analyzer dumps.
const ConstRTIOLogChannel = "config_rtio_log_channel"

// Ethernet MAC packet memory layout: RX slot 0, RX slot 1, TX slot 0,
// TX slot 1, each EthmacSlotSize bytes.
const (
	EthmacSlotSize   = 0x800
	EthmacSlots      = 2
	EthmacMemorySize = 2 * EthmacSlots * EthmacSlotSize
)
