package consensus

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/soliseum/arenad/internal/domain"
)

const testArenaID = "3f0c9a5e-8b31-4a7d-9b2e-6d4f1c0a7e55"

func TestSettleMessageLayout(t *testing.T) {
	msg := SettleMessage(testArenaID, domain.SideB, 7)
	require.Len(t, msg, len("settle")+16+1+8)

	require.Equal(t, []byte("settle"), msg[:6])

	id := uuid.MustParse(testArenaID)
	require.Equal(t, id[:], msg[6:22])

	require.Equal(t, byte(domain.SideB), msg[22])
	require.Equal(t, uint64(7), binary.LittleEndian.Uint64(msg[23:]))
}

func TestResetMessageLayout(t *testing.T) {
	msg := ResetMessage(testArenaID, 42)
	require.Len(t, msg, len("reset")+16+8)

	require.Equal(t, []byte("reset"), msg[:5])

	id := uuid.MustParse(testArenaID)
	require.Equal(t, id[:], msg[5:21])

	require.Equal(t, uint64(42), binary.LittleEndian.Uint64(msg[21:]))
}

func TestRotateMessageLayout(t *testing.T) {
	var keys domain.Committee
	for i := range keys {
		keys[i][0] = 0x02
		keys[i][32] = byte(i + 1)
	}

	msg := RotateMessage(testArenaID, keys, 3)
	require.Len(t, msg, len("update_oracles")+16+3*domain.PublicKeySize+8)

	tagLen := len("update_oracles")
	require.Equal(t, []byte("update_oracles"), msg[:tagLen])

	id := uuid.MustParse(testArenaID)
	require.Equal(t, id[:], msg[tagLen:tagLen+16])

	for i, k := range keys {
		off := tagLen + 16 + i*domain.PublicKeySize
		require.Equal(t, k[:], msg[off:off+domain.PublicKeySize])
	}

	require.Equal(t, uint64(3), binary.LittleEndian.Uint64(msg[tagLen+16+3*domain.PublicKeySize:]))
}

// Distinct operations, nonces, winners, and arenas must all produce distinct
// payloads, otherwise a signature could authorize something it never signed.
func TestMessageDomainSeparation(t *testing.T) {
	otherID := "7d3b2f10-5c44-49e9-8a17-0b9e2d6c4f88"

	msgs := [][]byte{
		SettleMessage(testArenaID, domain.SideA, 1),
		SettleMessage(testArenaID, domain.SideB, 1),
		SettleMessage(testArenaID, domain.SideA, 2),
		SettleMessage(otherID, domain.SideA, 1),
		ResetMessage(testArenaID, 1),
	}

	for i := range msgs {
		for j := i + 1; j < len(msgs); j++ {
			require.NotEqual(t, msgs[i], msgs[j], "messages %d and %d collide", i, j)
		}
	}
}

// An unparseable arena id binds the zero uuid instead of panicking; the
// resulting message can never match one built for a real arena.
func TestMessageMalformedArenaID(t *testing.T) {
	msg := SettleMessage("not-a-uuid", domain.SideA, 0)
	require.Equal(t, make([]byte, 16), msg[6:22])
}
