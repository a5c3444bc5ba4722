package gatts

import "fmt"

// BTStatus is a raw outcome code of a GAP (advertising / connection) operation.
type BTStatus uint8

const (
	BTSuccess BTStatus = iota
	BTFail
	BTNotReady
	BTNoMem
	BTBusy
	BTDone
	BTUnsupported
	BTParamInvalid
	BTUnhandled
	BTAuthFailure
	BTRemoteDeviceDown
	BTAuthRejected
	BTInvalidStaticRandAddr
	BTPending
	BTUnacceptConnInterval
	BTParamOutOfRange
	BTTimeout
	BTPeerLEDataLenUnsupported
	BTControlLEDataLenUnsupported
	BTIllegalParameterFmt
	BTMemoryFull
	BTEIRTooLarge
)

var btStatusNames = [...]string{
	"Success", "Fail", "NotReady", "NoMem", "Busy", "Done", "Unsupported",
	"ParamInvalid", "Unhandled", "AuthFailure", "RemoteDeviceDown",
	"AuthRejected", "InvalidStaticRandAddr", "Pending", "UnacceptConnInterval",
	"ParamOutOfRange", "Timeout", "PeerLEDataLenUnsupported",
	"ControlLEDataLenUnsupported", "IllegalParameterFmt", "MemoryFull",
	"EIRTooLarge",
}

func (s BTStatus) String() string {
	if int(s) < len(btStatusNames) {
		return btStatusNames[s]
	}
	return fmt.Sprintf("BTStatus(%d)", uint8(s))
}

// GATTStatus is a raw outcome code of a GATT operation.
type GATTStatus uint8

const (
	GATTOk                   GATTStatus = 0x00
	GATTInvalidHandle        GATTStatus = 0x01
	GATTReadNotPermitted     GATTStatus = 0x02
	GATTWriteNotPermitted    GATTStatus = 0x03
	GATTInvalidPDU           GATTStatus = 0x04
	GATTInsufAuthentication  GATTStatus = 0x05
	GATTRequestNotSupported  GATTStatus = 0x06
	GATTInvalidOffset        GATTStatus = 0x07
	GATTInsufAuthorization   GATTStatus = 0x08
	GATTPrepareQueueFull     GATTStatus = 0x09
	GATTNotFound             GATTStatus = 0x0a
	GATTNotLong              GATTStatus = 0x0b
	GATTInsufKeySize         GATTStatus = 0x0c
	GATTInvalidAttrLen       GATTStatus = 0x0d
	GATTUnlikely             GATTStatus = 0x0e
	GATTInsufEncryption      GATTStatus = 0x0f
	GATTUnsupportedGroupType GATTStatus = 0x10
	GATTInsufResource        GATTStatus = 0x11
	GATTNoResources          GATTStatus = 0x80
	GATTInternalError        GATTStatus = 0x81
	GATTWrongState           GATTStatus = 0x82
	GATTDBFull               GATTStatus = 0x83
	GATTBusy                 GATTStatus = 0x84
	GATTError                GATTStatus = 0x85
	GATTCmdStarted           GATTStatus = 0x86
	GATTIllegalParameter     GATTStatus = 0x87
	GATTPending              GATTStatus = 0x88
	GATTAuthFail             GATTStatus = 0x89
	GATTMore                 GATTStatus = 0x8a
	GATTInvalidCfg           GATTStatus = 0x8b
	GATTServiceStarted       GATTStatus = 0x8c
	GATTEncryptedNoMITM      GATTStatus = 0x8d
	GATTNotEncrypted         GATTStatus = 0x8e
	GATTCongested            GATTStatus = 0x8f
	GATTDuplicateReg         GATTStatus = 0x90
	GATTAlreadyOpen          GATTStatus = 0x91
	GATTCancel               GATTStatus = 0x92
	GATTStackRsp             GATTStatus = 0xe0
	GATTAppRsp               GATTStatus = 0xe1
	GATTUnknownError         GATTStatus = 0xef
	GATTCCCConfigError       GATTStatus = 0xfd
	GATTProcedureInProgress  GATTStatus = 0xfe
	GATTOutOfRange           GATTStatus = 0xff
)

var gattStatusNames = map[GATTStatus]string{
	GATTOk:                   "Ok",
	GATTInvalidHandle:        "InvalidHandle",
	GATTReadNotPermitted:     "ReadNotPermitted",
	GATTWriteNotPermitted:    "WriteNotPermitted",
	GATTInvalidPDU:           "InvalidPDU",
	GATTInsufAuthentication:  "InsufAuthentication",
	GATTRequestNotSupported:  "RequestNotSupported",
	GATTInvalidOffset:        "InvalidOffset",
	GATTInsufAuthorization:   "InsufAuthorization",
	GATTPrepareQueueFull:     "PrepareQueueFull",
	GATTNotFound:             "NotFound",
	GATTNotLong:              "NotLong",
	GATTInsufKeySize:         "InsufKeySize",
	GATTInvalidAttrLen:       "InvalidAttrLen",
	GATTUnlikely:             "Unlikely",
	GATTInsufEncryption:      "InsufEncryption",
	GATTUnsupportedGroupType: "UnsupportedGroupType",
	GATTInsufResource:        "InsufResource",
	GATTNoResources:          "NoResources",
	GATTInternalError:        "InternalError",
	GATTWrongState:           "WrongState",
	GATTDBFull:               "DBFull",
	GATTBusy:                 "Busy",
	GATTError:                "Error",
	GATTCmdStarted:           "CmdStarted",
	GATTIllegalParameter:     "IllegalParameter",
	GATTPending:              "Pending",
	GATTAuthFail:             "AuthFail",
	GATTMore:                 "More",
	GATTInvalidCfg:           "InvalidCfg",
	GATTServiceStarted:       "ServiceStarted",
	GATTEncryptedNoMITM:      "EncryptedNoMITM",
	GATTNotEncrypted:         "NotEncrypted",
	GATTCongested:            "Congested",
	GATTDuplicateReg:         "DuplicateReg",
	GATTAlreadyOpen:          "AlreadyOpen",
	GATTCancel:               "Cancel",
	GATTStackRsp:             "StackRsp",
	GATTAppRsp:               "AppRsp",
	GATTUnknownError:         "UnknownError",
	GATTCCCConfigError:       "CCCConfigError",
	GATTProcedureInProgress:  "ProcedureInProgress",
	GATTOutOfRange:           "OutOfRange",
}

func (s GATTStatus) String() string {
	if name, ok := gattStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("GATTStatus(0x%02x)", uint8(s))
}

// OperationFailedError reports a non-success status from the stack. The
// operation it names is aborted and not retried.
type OperationFailedError struct {
	Op   string
	Code fmt.Stringer
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("gatts: %s failed: %s", e.Op, e.Code)
}

// CheckBT translates a GAP status into nil or an *OperationFailedError.
func CheckBT(op string, s BTStatus) error {
	if s == BTSuccess {
		return nil
	}
	return &OperationFailedError{Op: op, Code: s}
}

// CheckGATT translates a GATT status into nil or an *OperationFailedError.
func CheckGATT(op string, s GATTStatus) error {
	if s == GATTOk {
		return nil
	}
	return &OperationFailedError{Op: op, Code: s}
}
