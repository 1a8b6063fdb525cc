package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testRecord() *EndpointRecord {
	return &EndpointRecord{
		EndpointName:         "m2m-0a1b",
		InternalEndpointName: "5c0e2ba1-7c3b-5d2e-9f3a-3a8e0e0b1c2d",
		UniqueID:             3021,
		ProductID:            3,
		HasProduct:           true,
	}
}

func TestEndpointTXTRoundTrip(t *testing.T) {
	rec := testRecord()

	strs := TXTRecordsToStrings(EncodeEndpointTXT(rec))
	assert.Equal(t, []string{
		"ep=m2m-0a1b",
		"iep=5c0e2ba1-7c3b-5d2e-9f3a-3a8e0e0b1c2d",
		"prod=3",
		"uid=3021",
	}, strs)

	got, err := DecodeEndpointTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestEndpointTXTWithoutProduct(t *testing.T) {
	rec := testRecord()
	rec.HasProduct = false
	rec.ProductID = 0

	txt := EncodeEndpointTXT(rec)
	_, ok := txt[TXTKeyProduct]
	assert.False(t, ok)

	got, err := DecodeEndpointTXT(txt)
	require.NoError(t, err)
	assert.False(t, got.HasProduct)
}

func TestDecodeEndpointTXTErrors(t *testing.T) {
	tests := []struct {
		name    string
		txt     TXTRecordMap
		wantErr error
	}{
		{"missing ep", TXTRecordMap{"iep": "x", "uid": "1"}, ErrMissingRequired},
		{"empty ep", TXTRecordMap{"ep": "", "iep": "x", "uid": "1"}, ErrMissingRequired},
		{"missing iep", TXTRecordMap{"ep": "a", "uid": "1"}, ErrMissingRequired},
		{"missing uid", TXTRecordMap{"ep": "a", "iep": "x"}, ErrMissingRequired},
		{"bad uid", TXTRecordMap{"ep": "a", "iep": "x", "uid": "-1"}, ErrInvalidTXTRecord},
		{"uid overflow", TXTRecordMap{"ep": "a", "iep": "x", "uid": "4294967296"}, ErrInvalidTXTRecord},
		{"bad prod", TXTRecordMap{"ep": "a", "iep": "x", "uid": "1", "prod": "x"}, ErrInvalidTXTRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEndpointTXT(tt.txt)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"ep=a=b", "flag", ""})
	assert.Equal(t, TXTRecordMap{"ep": "a=b", "flag": ""}, txt)
}

func TestInstanceName(t *testing.T) {
	rec := &EndpointRecord{EndpointName: strings.Repeat("x", 80)}
	name := InstanceName(rec)
	assert.Len(t, name, MaxInstanceNameLen)
	assert.NoError(t, ValidateInstanceName(name))

	assert.ErrorIs(t, ValidateInstanceName(""), ErrInstanceNameTooLong)
	assert.ErrorIs(t, ValidateInstanceName(rec.EndpointName), ErrInstanceNameTooLong)
}

func TestEntryToClient(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "m2m-0a1b"},
		HostName:      "device.local.",
		Port:          5683,
		Text:          TXTRecordsToStrings(EncodeEndpointTXT(testRecord())),
		AddrIPv4:      []net.IP{net.ParseIP("192.168.1.20")},
	}

	svc := entryToClient(entry)
	require.NotNil(t, svc)
	assert.Equal(t, "m2m-0a1b", svc.InstanceName)
	assert.Equal(t, uint16(5683), svc.Port)
	assert.Equal(t, []string{"192.168.1.20"}, svc.Addresses)
	assert.Equal(t, uint32(3021), svc.UniqueID)

	entry.Text = []string{"ep=a"}
	assert.Nil(t, entryToClient(entry))
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

type stubAdvertiser struct{ mock.Mock }

func (s *stubAdvertiser) Advertise(ctx context.Context, rec *EndpointRecord) error {
	return s.Called(ctx, rec).Error(0)
}

func (s *stubAdvertiser) Update(rec *EndpointRecord) error {
	return s.Called(rec).Error(0)
}

func (s *stubAdvertiser) Stop() error {
	return s.Called().Error(0)
}

func TestAnnouncer_Lifecycle(t *testing.T) {
	adv := &stubAdvertiser{}
	adv.On("Advertise", mock.Anything, mock.Anything).Return(nil).Once()
	adv.On("Update", mock.Anything).Return(nil).Once()
	adv.On("Stop").Return(nil).Once()

	a := NewAnnouncer(adv, nil)
	assert.False(t, a.Active())

	rec := testRecord()
	require.NoError(t, a.Announce(context.Background(), rec))
	assert.True(t, a.Active())

	// A second announce updates the TXT records.
	rec.ProductID = 4
	require.NoError(t, a.Announce(context.Background(), rec))
	got, ok := a.Record()
	require.True(t, ok)
	assert.Equal(t, int64(4), got.ProductID)

	require.NoError(t, a.Withdraw())
	assert.False(t, a.Active())
	_, ok = a.Record()
	assert.False(t, ok)

	// Nothing left to stop.
	require.NoError(t, a.Withdraw())

	adv.AssertExpectations(t)
}

func TestAnnouncer_AdvertiseError(t *testing.T) {
	boom := errors.New("no multicast")
	adv := &stubAdvertiser{}
	adv.On("Advertise", mock.Anything, mock.Anything).Return(boom).Once()

	a := NewAnnouncer(adv, nil)
	assert.ErrorIs(t, a.Announce(context.Background(), testRecord()), boom)
	assert.False(t, a.Active())
	require.NoError(t, a.Withdraw())

	adv.AssertExpectations(t)
	adv.AssertNotCalled(t, "Stop")
}

func TestAnnouncer_RequiresEndpointName(t *testing.T) {
	a := NewAnnouncer(&stubAdvertiser{}, nil)
	assert.ErrorIs(t, a.Announce(context.Background(), &EndpointRecord{}), ErrMissingRequired)
}

func TestMDNSAdvertiser_UpdateBeforeAdvertise(t *testing.T) {
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	assert.ErrorIs(t, a.Update(testRecord()), ErrNotAdvertising)
	assert.NoError(t, a.Stop())
}
