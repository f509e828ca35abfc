package parse

import "fmt"

// TLVType identifies the payload layout of a TLV record.
type TLVType uint32

// TLV type codes emitted by the TI mmWave demos. 1..9 are the out-of-box
// demo, 3xx the "ext" demos (low-power x432 and automotive BSD), 10xx the
// people counting / vital signs / gesture labs.
const (
	TLVDetectedPoints                TLVType = 1
	TLVRangeProfile                  TLVType = 2
	TLVNoiseProfile                  TLVType = 3
	TLVAzimuthStaticHeatMap          TLVType = 4
	TLVRangeDopplerHeatMap           TLVType = 5
	TLVStats                         TLVType = 6
	TLVDetectedPointsSideInfo        TLVType = 7
	TLVAzimuthElevationStaticHeatMap TLVType = 8
	TLVTemperatureStats              TLVType = 9

	TLVExtDetectedPoints      TLVType = 301
	TLVExtRangeProfileMajor   TLVType = 302
	TLVExtRangeProfileMinor   TLVType = 303
	TLVExtStats               TLVType = 306
	TLVExtTargetList          TLVType = 308
	TLVExtTargetIndex         TLVType = 309
	TLVExtMicroDopplerRaw     TLVType = 310
	TLVExtMicroDopplerFeature TLVType = 311
	TLVExtEnhancedPresence    TLVType = 315
	TLVExtClassifierInfo      TLVType = 317
	TLVExtRxChanCompensation  TLVType = 318
	TLVExtQuickEvalInfo       TLVType = 319
	TLVExtStatsBSD            TLVType = 320
	TLVExtTargetList2DBSD     TLVType = 321
	TLVExtCamTriggers         TLVType = 322
	TLVExtVelocity            TLVType = 323

	TLVSphericalPoints          TLVType = 1000
	TLVTrackerTargetList        TLVType = 1010
	TLVTrackerTargetIndex       TLVType = 1011
	TLVTrackerTargetHeight      TLVType = 1012
	TLVCompressedPoints         TLVType = 1020
	TLVPresenceIndication       TLVType = 1021
	TLVOccupancyStateMachine    TLVType = 1030
	TLVSurfaceClassification    TLVType = 1031
	TLVVitalSigns               TLVType = 1040
	TLVGestureFeatures6843      TLVType = 1050
	TLVGestureOutputProb6843    TLVType = 1051
	TLVGestureFeatures6432      TLVType = 1060
	TLVGestureClassifier6432    TLVType = 1061
	TLVGesturePresence6432      TLVType = 1062
	TLVGesturePresenceThreshold TLVType = 1063
)

var tlvNames = map[TLVType]string{
	TLVDetectedPoints:                "DetectedPoints",
	TLVRangeProfile:                  "RangeProfile",
	TLVNoiseProfile:                  "NoiseProfile",
	TLVAzimuthStaticHeatMap:          "AzimuthStaticHeatMap",
	TLVRangeDopplerHeatMap:           "RangeDopplerHeatMap",
	TLVStats:                         "Stats",
	TLVDetectedPointsSideInfo:        "DetectedPointsSideInfo",
	TLVAzimuthElevationStaticHeatMap: "AzimuthElevationStaticHeatMap",
	TLVTemperatureStats:              "TemperatureStats",
	TLVExtDetectedPoints:             "ExtDetectedPoints",
	TLVExtRangeProfileMajor:          "ExtRangeProfileMajor",
	TLVExtRangeProfileMinor:          "ExtRangeProfileMinor",
	TLVExtStats:                      "ExtStats",
	TLVExtTargetList:                 "ExtTargetList",
	TLVExtTargetIndex:                "ExtTargetIndex",
	TLVExtMicroDopplerRaw:            "ExtMicroDopplerRaw",
	TLVExtMicroDopplerFeature:        "ExtMicroDopplerFeatures",
	TLVExtEnhancedPresence:           "ExtEnhancedPresenceIndication",
	TLVExtClassifierInfo:             "ExtClassifierInfo",
	TLVExtRxChanCompensation:         "ExtRxChanCompensationInfo",
	TLVExtQuickEvalInfo:              "ExtQuickEvalInfo",
	TLVExtStatsBSD:                   "ExtStatsBSD",
	TLVExtTargetList2DBSD:            "ExtTargetList2DBSD",
	TLVExtCamTriggers:                "ExtCamTriggers",
	TLVExtVelocity:                   "ExtVelocity",
	TLVSphericalPoints:               "SphericalPoints",
	TLVTrackerTargetList:             "TrackerProc3DTargetList",
	TLVTrackerTargetIndex:            "TrackerProcTargetIndex",
	TLVTrackerTargetHeight:           "TrackerProcTargetHeight",
	TLVCompressedPoints:              "CompressedPoints",
	TLVPresenceIndication:            "PresenceIndication",
	TLVOccupancyStateMachine:         "OccupancyStateMachine",
	TLVSurfaceClassification:         "SurfaceClassification",
	TLVVitalSigns:                    "VitalSigns",
	TLVGestureFeatures6843:           "GestureFeatures6843",
	TLVGestureOutputProb6843:         "GestureOutputProb6843",
	TLVGestureFeatures6432:           "GestureFeatures6432",
	TLVGestureClassifier6432:         "GestureClassifier6432",
	TLVGesturePresence6432:           "GesturePresence6432",
	TLVGesturePresenceThreshold:      "GesturePresenceThreshold6432",
}

func (t TLVType) String() string {
	if n, ok := tlvNames[t]; ok {
		return n
	}
	return fmt.Sprintf("TLV(%d)", uint32(t))
}

// Wire sizes, all little-endian.
const (
	MAGIC_WORD        = 0x0708050603040102 // 02 01 04 03 06 05 08 07 read as u64 LE
	FRAME_HEADER_SIZE = 40                 // u64 magic + 8 x u32
	TLV_HEADER_SIZE   = 8                  // u32 type + u32 length
	FRAME_ALIGNMENT   = 32                 // frames are padded to this many bytes

	POINT_SIZE             = 16  // 4 x f32
	SIDE_INFO_SIZE         = 4   // 2 x u16
	EXT_POINT_UNIT_SIZE    = 20  // 4 x f32 + 2 x i16
	EXT_POINT_SIZE         = 10  // 4 x i16 + 2 x u8
	COMP_SPHERE_UNIT_SIZE  = 20  // 5 x f32
	COMP_SPHERE_POINT_SIZE = 8   // i8, i8, i16, u16, u16
	TRACK_3D_SIZE          = 112 // u32 + 27 x f32
	TRACK_2D_SIZE          = 72  // u32 + 17 x f32
	TRACK_HEIGHT_SIZE      = 12  // u32 + 2 x f32
	VITALS_SIZE            = 136 // 2 x u16 + 33 x f32
	EXT_STATS_SIZE         = 24  // 2 x u32 + 8 x u16
	EXT_STATS_BSD_SIZE     = 32  // EXT_STATS_SIZE + 2 x f32
	CAM_TRIGGERS_SIZE      = 16  // 4 x u32
	VELOCITY_SIZE          = 5   // f32 + bool

	NUM_CLASSES          = 2
	CLASSIFIER_SCALE     = 128.0
	VITALS_WAVEFORM_LEN  = 15
	VITALS_INVALID_ID    = 999
	RX_CHAN_COMP_LEN     = 13
	GESTURE_6843_LEN     = 10
	GESTURE_6432_LEN     = 16
	OCCUPANCY_ZONES      = 32
	UNASSOCIATED_TRACK   = 255
	SIDE_INFO_SCALE      = 0.1
	MAX_SANE_FRAME_BYTES = 1 << 20
)

var magicBytes = [8]byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05, 0x08, 0x07}

// MagicWord returns the 8-byte sync pattern that starts every frame.
func MagicWord() []byte {
	m := magicBytes
	return m[:]
}
