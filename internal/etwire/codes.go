// Package etwire defines the raw-TCP wire protocol's command codes and
// binary codec (spec.md §6.1): fixed-width big-endian framing, no
// request pipelining per connection.
package etwire

// Command is a request's leading 32-bit code.
type Command int32

const (
	CmdClose Command = iota + 1
	CmdAlive
	CmdWakeAtt
	CmdWakeAll
	CmdStationCreateAt
	CmdStationRemove
	CmdStationSetPos
	CmdStationGetPos
	CmdStationExists
	CmdStationAttach
	CmdStationDetach
	CmdStationIsAttached
	CmdEvsNewGrp
	CmdEvsGet
	CmdEvsPut
	CmdEvsDump
	CmdSysData
	CmdSysHistogram
	CmdSysNumStations
	CmdSysMaxStations
	CmdSysNumAttachments
	CmdSysMaxAttachments
	CmdSysHeartbeat
	CmdSysPid
)

func (c Command) String() string {
	switch c {
	case CmdClose:
		return "CLOSE"
	case CmdAlive:
		return "ALIVE"
	case CmdWakeAtt:
		return "WAKE_ATT"
	case CmdWakeAll:
		return "WAKE_ALL"
	case CmdStationCreateAt:
		return "STATION_CREATE_AT"
	case CmdStationRemove:
		return "STATION_REMOVE"
	case CmdStationSetPos:
		return "STATION_SET_POS"
	case CmdStationGetPos:
		return "STATION_GET_POS"
	case CmdStationExists:
		return "STATION_EXISTS"
	case CmdStationAttach:
		return "STATION_ATTACH"
	case CmdStationDetach:
		return "STATION_DETACH"
	case CmdStationIsAttached:
		return "STATION_IS_ATTACHED"
	case CmdEvsNewGrp:
		return "EVS_NEW_GRP"
	case CmdEvsGet:
		return "EVS_GET"
	case CmdEvsPut:
		return "EVS_PUT"
	case CmdEvsDump:
		return "EVS_DUMP"
	case CmdSysData:
		return "SYS_DATA"
	case CmdSysHistogram:
		return "SYS_HISTOGRAM"
	case CmdSysNumStations, CmdSysMaxStations, CmdSysNumAttachments, CmdSysMaxAttachments,
		CmdSysHeartbeat, CmdSysPid:
		return "SYS_*"
	default:
		return "UNKNOWN"
	}
}

// Position sentinels mirror system.PosEnd/ParEnd/ParNewHead on the wire.
const (
	WirePosEnd     int32 = -1
	WireParEnd     int32 = -1
	WireParNewHead int32 = -2
)

// GetMode mirrors eventlist.Mode as carried in EVS_GET/EVS_NEW_GRP's
// `wait`/`mode` field.
type GetMode int32

const (
	WireAsync GetMode = iota
	WireTimed
	WireSleep
)
