package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeEndpointTXT creates the TXT records of a client.
func EncodeEndpointTXT(rec *EndpointRecord) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyEndpoint] = rec.EndpointName
	txt[TXTKeyInternalEndpoint] = rec.InternalEndpointName
	txt[TXTKeyUniqueID] = strconv.FormatUint(uint64(rec.UniqueID), 10)

	if rec.HasProduct {
		txt[TXTKeyProduct] = strconv.FormatInt(rec.ProductID, 10)
	}
	return txt
}

// DecodeEndpointTXT parses the TXT records of a client.
func DecodeEndpointTXT(txt TXTRecordMap) (*EndpointRecord, error) {
	rec := &EndpointRecord{}

	var ok bool
	rec.EndpointName, ok = txt[TXTKeyEndpoint]
	if !ok || rec.EndpointName == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyEndpoint)
	}

	rec.InternalEndpointName, ok = txt[TXTKeyInternalEndpoint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyInternalEndpoint)
	}

	uidStr, ok := txt[TXTKeyUniqueID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyUniqueID)
	}
	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyUniqueID, uidStr)
	}
	rec.UniqueID = uint32(uid)

	if prodStr, ok := txt[TXTKeyProduct]; ok {
		prod, err := strconv.ParseInt(prodStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyProduct, prodStr)
		}
		rec.ProductID = prod
		rec.HasProduct = true
	}

	return rec, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// InstanceName returns the mDNS instance name for a client.
func InstanceName(rec *EndpointRecord) string {
	name := rec.EndpointName
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
