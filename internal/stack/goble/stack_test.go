package goble

import (
	"testing"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/assert"
)

func TestPropsToCharacteristic(t *testing.T) {
	tests := []struct {
		name string
		prop ble.Property
		want struct {
			read, write, notify, indicate bool
		}
	}{
		{
			name: "read only",
			prop: ble.CharRead,
			want: struct{ read, write, notify, indicate bool }{read: true},
		},
		{
			name: "write without response counts as writable",
			prop: ble.CharWriteNR,
			want: struct{ read, write, notify, indicate bool }{write: true},
		},
		{
			name: "notify",
			prop: ble.CharNotify,
			want: struct{ read, write, notify, indicate bool }{notify: true},
		},
		{
			name: "indicate only prefers indications",
			prop: ble.CharIndicate,
			want: struct{ read, write, notify, indicate bool }{notify: true, indicate: true},
		},
		{
			name: "notify and indicate prefers notifications",
			prop: ble.CharNotify | ble.CharIndicate,
			want: struct{ read, write, notify, indicate bool }{notify: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := propsToCharacteristic(&ble.Characteristic{
				UUID:     ble.UUID16(0x2a37),
				Property: tt.prop,
			})

			assert.Equal(t, "2a37", got.UUID)
			assert.Equal(t, tt.want.read, got.Readable)
			assert.Equal(t, tt.want.write, got.Writable)
			assert.Equal(t, tt.want.notify, got.Notifiable)
			assert.Equal(t, tt.want.indicate, got.Indicate)
		})
	}
}
