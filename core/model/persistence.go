package model

import (
	"encoding/gob"
	"encoding/json"
	"io"
	"os"

	latentErrors "github.com/YuminosukeSato/latent/pkg/errors"
)

// SaveState は TrainedState を gob 形式でファイルに保存する
//
// 使用例:
//
//	state, _ := pca.TrainedState()
//	err := model.SaveState(state, "pca.gob")
func SaveState(state *TrainedState, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return latentErrors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	return EncodeState(state, file)
}

// LoadState はファイルから TrainedState を読み込み、構造を検証する
func LoadState(filename string) (*TrainedState, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, latentErrors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return DecodeState(file)
}

// EncodeState は TrainedState を gob 形式で w に書き込む
func EncodeState(state *TrainedState, w io.Writer) error {
	if state == nil {
		return latentErrors.NewValidationError("trained_state", "state is nil", nil)
	}
	if err := gob.NewEncoder(w).Encode(state); err != nil {
		return latentErrors.Wrap(err, "failed to encode trained state")
	}
	return nil
}

// DecodeState は gob 形式の TrainedState を r から読み込む
func DecodeState(r io.Reader) (*TrainedState, error) {
	var state TrainedState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return nil, latentErrors.Wrap(err, "failed to decode trained state")
	}
	return finishDecoded(&state)
}

// WriteStateJSON は TrainedState を JSON で w に書き込む
func WriteStateJSON(w io.Writer, state *TrainedState) error {
	if state == nil {
		return latentErrors.NewValidationError("trained_state", "state is nil", nil)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return latentErrors.Wrap(err, "failed to encode trained state as JSON")
	}
	return nil
}

// ReadStateJSON は JSON の TrainedState を r から読み込み、構造を検証する
func ReadStateJSON(r io.Reader) (*TrainedState, error) {
	var state TrainedState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return nil, latentErrors.Wrap(err, "failed to decode trained state JSON")
	}
	return finishDecoded(&state)
}

// finishDecoded normalizes empty bags and checks the structural invariants.
// Ordering of ratios is not checked here because the producing variant is unknown.
func finishDecoded(state *TrainedState) (*TrainedState, error) {
	if state.QuantumParameters == nil {
		state.QuantumParameters = Params{}
	}
	if state.ModelParameters == nil {
		state.ModelParameters = Params{}
	}
	if state.TrainingStatistics == nil {
		state.TrainingStatistics = Params{}
	}
	if err := state.Validate(false); err != nil {
		return nil, latentErrors.Wrap(err, "decoded trained state is invalid")
	}
	return state, nil
}
