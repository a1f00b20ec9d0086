// Package dataset reads the Kaggle Kuzushiji Recognition data.
//
// All paths come from an explicit Config; nothing is resolved relative to
// the working directory or the binary. The expected layout is:
//
//	<root>/train.csv                  image_id,labels
//	<root>/train_images/<id>.jpg
//	<root>/test_images/*.jpg
//	<root>/unicode_translation.csv    Unicode,char
//	<converted>/train.csv, val.csv    same columns as train.csv
//	<converted>/char_images_<split>.json
//
// The converted directory defaults to "<root>-converted", a sibling of the
// Kaggle directory.
//
// Page images are decoded through an imaging.ImageCache shared by the
// caller, so a dataset can be read from several goroutines at once.
package dataset
