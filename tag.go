package revdb

// Tag is the single leading byte of every encoded value. The numeric
// assignments are part of the on-disk contract: once a document has been
// written with a given set of tags, the tags must keep the same meaning
// forever.
type Tag byte

const (
	TagNull Tag = iota
	TagTrue
	TagFalse
	TagInt8
	TagInt16
	TagInt32
	TagInt64
	TagUInt64
	TagFloat32
	TagFloat64
	TagRawNumber
	TagDate
	TagData
	TagString
	TagSharedString
	TagSharedStringRef
	TagExternStringRef
	TagArray
	TagDict
)

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "Null"
	case TagTrue:
		return "True"
	case TagFalse:
		return "False"
	case TagInt8:
		return "Int8"
	case TagInt16:
		return "Int16"
	case TagInt32:
		return "Int32"
	case TagInt64:
		return "Int64"
	case TagUInt64:
		return "UInt64"
	case TagFloat32:
		return "Float32"
	case TagFloat64:
		return "Float64"
	case TagRawNumber:
		return "RawNumber"
	case TagDate:
		return "Date"
	case TagData:
		return "Data"
	case TagString:
		return "String"
	case TagSharedString:
		return "SharedString"
	case TagSharedStringRef:
		return "SharedStringRef"
	case TagExternStringRef:
		return "ExternStringRef"
	case TagArray:
		return "Array"
	case TagDict:
		return "Dict"
	default:
		return "Tag(?)"
	}
}
