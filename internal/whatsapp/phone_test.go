package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"billing-crm/internal/pkg/apperrors"
)

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "formatted national number gets country prefix",
			raw:  "(11) 99999-9999",
			want: "5511999999999",
		},
		{
			name: "already prefixed number is untouched",
			raw:  "5511999999999",
			want: "5511999999999",
		},
		{
			name: "ten digit landline gets prefix",
			raw:  "11 3333-4444",
			want: "551133334444",
		},
		{
			name: "plus and spaces are stripped",
			raw:  "+55 11 98888-7777",
			want: "5511988887777",
		},
		{
			name:    "eight digits is too short",
			raw:     "9999-9999",
			wantErr: true,
		},
		{
			name:    "fourteen digits is too long",
			raw:     "55119999999990",
			wantErr: true,
		},
		{
			name:    "empty input",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "letters only",
			raw:     "not a phone",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatAddress(tc.raw, "55", 10, 13)
			if tc.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidAddress)
				assert.Empty(t, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatAddressBoundsCheckedBeforePrefixing(t *testing.T) {
	// 13 digits without the prefix is within bounds; prefixing afterwards
	// may push the result past maxDigits and that is accepted.
	got, err := FormatAddress("1199999999999", "55", 10, 13)
	assert.NoError(t, err)
	assert.Equal(t, "551199999999999", got)
}
