package audio

var TranscodeWith = transcodeWith
