package controlclient

import "github.com/zalando/go-keyring"

const keyringService = "agendaprint"

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

// SavePassword stores the control API password of user in the OS keyring.
func SavePassword(user, password string) error {
	return keyringSet(keyringService, user, password)
}

func LoadPassword(user string) (string, error) {
	return keyringGet(keyringService, user)
}

func DeletePassword(user string) error {
	err := keyringDelete(keyringService, user)
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}
