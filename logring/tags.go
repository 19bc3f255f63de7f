package logring

import "strconv"

// Tag identifies the source or category of a record. Tags at or below
// LastBinaryTag carry raw binary payloads, the rest carry text.
type Tag uint8

// Binary tags.
const (
	TagBinary Tag = iota
	TagBinWifiCtrlRx
	TagBinWifiDataRx
	TagBinWifiCtrlTx
	TagBinWifiDataTx
)

// LastBinaryTag is the highest tag value denoting a binary record.
const LastBinaryTag = TagBinWifiDataTx

// String tags.
const (
	TagMIF Tag = LastBinaryTag + 1 + iota
	TagMxMan
	TagMxProc
	TagMxLog
	TagFWLoad
	TagFWPanic
	TagGDBTrans
	TagMxFile
	TagMxFW
	TagMxSampler
	TagMxLogTrans
	TagMxMgmtTrans
	TagMxMMap
	TagPanicMon
	TagPCIeMIF
	TagPlatMIF
	TagKICCommon
	TagWLBTD
	TagWLog
	TagMxCfg
	TagMxSysErr
	TagSlsiWLAN
	TagWLANHIP
	TagWLANData
	TagWLANCtrl
	TagBTCommon
	TagBTH4
	TagWLBT
	TagTestMe
	TagOOS
)

// MaxTag bounds the known tag range.
const MaxTag = TagOOS

var tagNames = [...]string{
	TagBinary:        "binary",
	TagBinWifiCtrlRx: "bin_wifi_ctrl_rx",
	TagBinWifiDataRx: "bin_wifi_data_rx",
	TagBinWifiCtrlTx: "bin_wifi_ctrl_tx",
	TagBinWifiDataTx: "bin_wifi_data_tx",
	TagMIF:           "mif",
	TagMxMan:         "mxman",
	TagMxProc:        "mxproc",
	TagMxLog:         "mxlog",
	TagFWLoad:        "fw_load",
	TagFWPanic:       "fw_panic",
	TagGDBTrans:      "gdb_trans",
	TagMxFile:        "mx_file",
	TagMxFW:          "mx_fw",
	TagMxSampler:     "mx_sampler",
	TagMxLogTrans:    "mxlog_trans",
	TagMxMgmtTrans:   "mxmgmt_trans",
	TagMxMMap:        "mx_mmap",
	TagPanicMon:      "panic_mon",
	TagPCIeMIF:       "pcie_mif",
	TagPlatMIF:       "plat_mif",
	TagKICCommon:     "kic_common",
	TagWLBTD:         "wlbtd",
	TagWLog:          "wlog",
	TagMxCfg:         "mx_cfg",
	TagMxSysErr:      "mx_syserr",
	TagSlsiWLAN:      "slsi_wlan",
	TagWLANHIP:       "wlan_hip",
	TagWLANData:      "wlan_data",
	TagWLANCtrl:      "wlan_ctrl",
	TagBTCommon:      "bt_common",
	TagBTH4:          "bt_h4",
	TagWLBT:          "wlbt",
	TagTestMe:        "test_me",
	TagOOS:           "OOS",
}

// IsBinary reports whether records with this tag carry binary payloads.
func (t Tag) IsBinary() bool {
	return t <= LastBinaryTag
}

// Name returns the short tag name used in rendered lines.
func (t Tag) Name() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "tag" + strconv.Itoa(int(t))
}

func (t Tag) String() string {
	return t.Name()
}

// TagByName looks up a tag by its short name.
func TagByName(name string) (Tag, bool) {
	for i, n := range tagNames {
		if n == name {
			return Tag(i), true
		}
	}
	return 0, false
}
